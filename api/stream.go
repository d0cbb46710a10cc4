package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"choreboard/domain"
	"choreboard/engine"
)

type boardSnapshot struct {
	Tasks       []domain.Task     `json:"tasks"`
	Members     []domain.Member   `json:"members"`
	SyncStatus  engine.SyncStatus `json:"syncStatus"`
	HasInflight bool              `json:"hasInflight"`
}

// streamBoard pushes the full board state over SSE whenever anything
// changes. EventSource cannot set headers, so a token query parameter is
// accepted as a fallback.
func streamBoard(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.QueryParam("token")
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		sess, err := auth.SessionFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		board, err := boards.Board(ctx, sess.Scope)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ch, unwatch := board.Watch()
		defer unwatch()
		for {
			snap := boardSnapshot{
				Tasks:       board.ListTasks(),
				Members:     board.ListMembers(),
				SyncStatus:  board.Status(),
				HasInflight: board.HasInflight(),
			}
			data, err := sonic.Marshal(snap)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				c.Logger().Error(err)
				return err
			}
			flusher.Flush()
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				continue
			}
		}
	}
}
