package handlers

import (
	"time"

	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"

	"vidgrab/allowlist"
	"vidgrab/config"
	"vidgrab/downloads"
)

var log *logrus.Logger
var store *sessions.CookieStore
var list *allowlist.List
var manager *downloads.Manager
var requestTimeout time.Duration

func Init(logger *logrus.Logger, l *allowlist.List, m *downloads.Manager) error {
	log = logger.WithFields(logrus.Fields{
		"component": "handlers",
	}).Logger

	list = l
	manager = m
	requestTimeout = config.GetRequestTimeout()

	// create the cookie store
	key, err := config.GetSessionAuthKey()
	if err != nil {
		return err
	}
	store = sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60, // seconds
		HttpOnly: true,
		Secure:   config.GetSecure(),
	}

	return nil
}

func Fini() {}
