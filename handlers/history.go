package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"vidgrab/database"
	"vidgrab/history"
)

const recentLimit = 100

func HistoryGet(c echo.Context) error {
	recent, err := history.Recent(database.Get(), recentLimit)
	if err != nil {
		log.Errorln(err)
		return c.String(http.StatusInternalServerError, "couldn't load history")
	}

	return c.Render(http.StatusOK, "history.html", map[string]interface{}{
		"active": manager.Active(),
		"recent": recent,
		"Footer": MakeFooter(),
	})
}

// DownloadsGet is the JSON flavor of the history page.
func DownloadsGet(c echo.Context) error {
	recent, err := history.Recent(database.Get(), recentLimit)
	if err != nil {
		log.Errorln(err)
		return c.JSON(http.StatusInternalServerError, errorBody{"internal", "couldn't load history"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"active": manager.Active(),
		"recent": recent,
	})
}
