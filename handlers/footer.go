package handlers

import "vidgrab/config"

type Footer struct {
	BuildDate    string
	BuildId      string
	BuildIdShort string
}

func MakeFooter() Footer {
	f := Footer{
		BuildDate:    config.GetBuildDate(),
		BuildId:      config.GetGitSHA(),
		BuildIdShort: config.GetGitSHA(),
	}
	if len(f.BuildIdShort) > 7 {
		f.BuildIdShort = f.BuildIdShort[0:7]
	}
	return f
}
