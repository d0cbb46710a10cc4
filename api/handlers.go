package api

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"choreboard/domain"
	"choreboard/engine"
)

const postCommandMaxSize = 64 * 1024 // 64 KiB

// Register wires up all board routes on the provided Echo instance.
func Register(e *echo.Echo, boards Boards, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.GET("/api/tasks", getTasks(boards, auth, logger))
	e.GET("/api/members", getMembers(boards, auth))
	e.GET("/api/orphans", getOrphans(boards, auth))
	e.GET("/api/status", getStatus(boards, auth))
	e.POST("/api/commands", postCommands(boards, auth, deduper, logger))
	e.GET("/api/stream", streamBoard(boards, auth))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
	// Stale marks a snapshot served because the live fetch failed.
	Stale bool `json:"stale,omitempty"`
}

type membersResponse struct {
	Members []domain.Member `json:"members"`
	Stale   bool            `json:"stale,omitempty"`
}

type statusResponse struct {
	SyncStatus  engine.SyncStatus `json:"syncStatus"`
	HasInflight bool              `json:"hasInflight"`
}

func getTasks(boards Boards, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newBoardRequestMetrics(ctx, logger)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		sess, authErr := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		board, boardErr := boards.Board(ctx, sess.Scope)
		metrics.ObserveFetch(time.Since(fetchStart))
		if boardErr != nil {
			if kind, ok := domain.KindOf(boardErr); ok && kind == domain.KindFetch {
				if tasks, _, ok := boards.Fallback(ctx, sess.Scope); ok {
					metrics.SetStale(true)
					metrics.SetItemsReturned(len(tasks))
					err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks, Stale: true})
					return err
				}
			}
			metrics.SetErrorStage("storage")
			c.Logger().Error(boardErr)
			err = c.String(http.StatusInternalServerError, boardErr.Error())
			return err
		}
		tasks := board.ListTasks()
		metrics.SetItemsReturned(len(tasks))
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getMembers(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		sess, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		board, err := boards.Board(ctx, sess.Scope)
		if err != nil {
			if kind, ok := domain.KindOf(err); ok && kind == domain.KindFetch {
				if _, members, ok := boards.Fallback(ctx, sess.Scope); ok {
					return c.JSON(http.StatusOK, membersResponse{Members: members, Stale: true})
				}
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, membersResponse{Members: board.ListMembers()})
	}
}

func getOrphans(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		sess, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		board, err := boards.Board(ctx, sess.Scope)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		orphans := board.OrphanedTasks()
		if orphans == nil {
			orphans = []domain.Task{}
		}
		return c.JSON(http.StatusOK, tasksResponse{Tasks: orphans})
	}
}

func getStatus(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		sess, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		board, err := boards.Board(ctx, sess.Scope)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, statusResponse{
			SyncStatus:  board.Status(),
			HasInflight: board.HasInflight(),
		})
	}
}

// lastStamp backs commandStamp; shared so concurrent requests never hand
// out the same value.
var lastStamp atomic.Int64

// commandStamp returns a strictly increasing timestamp for accepted
// commands, so two commands landing in the same nanosecond still order
// deterministically.
func commandStamp() int64 {
	for {
		last := lastStamp.Load()
		next := time.Now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if lastStamp.CompareAndSwap(last, next) {
			return next
		}
	}
}

type commandResult struct {
	IdempotencyKey string         `json:"idempotencyKey"`
	Status         string         `json:"status"`
	Error          string         `json:"error,omitempty"`
	Task           *domain.Task   `json:"task,omitempty"`
	Member         *domain.Member `json:"member,omitempty"`
}

type postCommandsResponse struct {
	Results []commandResult `json:"results"`
}

func postCommands(boards Boards, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		sess, err := auth.SessionFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, postCommandMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		cmds := make([]domain.Command, 0, 4)
		if err := dec.Decode(&cmds); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		for i := range cmds {
			if !sess.Mode.Allows(cmds[i].Kind) {
				return c.String(http.StatusForbidden, "command not permitted for this session")
			}
		}

		board, err := boards.Board(ctx, sess.Scope)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		results := make([]commandResult, 0, len(cmds))
		for i := range cmds {
			cmd := cmds[i]
			if cmd.IdempotencyKey == "" {
				cmd.IdempotencyKey = uuid.NewString()
			}
			cmd.ID = cmd.IdempotencyKey
			cmd.Timestamp = commandStamp()

			res := commandResult{IdempotencyKey: cmd.IdempotencyKey}
			if deduper != nil {
				added, dedupeErr := deduper.Add(ctx, sess.Scope, cmd.IdempotencyKey)
				if dedupeErr != nil {
					logger.WithError(dedupeErr).Warn("dedupe check failed; processing anyway")
				} else if !added {
					res.Status = "duplicate"
					results = append(results, res)
					continue
				}
			}

			out, dispatchErr := board.Dispatch(ctx, cmd)
			if dispatchErr != nil {
				res.Status = "rejected"
				res.Error = dispatchErr.Error()
				if deduper != nil {
					if rerr := deduper.Remove(context.Background(), sess.Scope, cmd.IdempotencyKey); rerr != nil {
						logger.WithError(rerr).WithField("key", cmd.IdempotencyKey).Error("dedupe rollback failed")
					}
				}
			} else {
				res.Status = "accepted"
				res.Task = out.Task
				res.Member = out.Member
			}
			results = append(results, res)
		}

		return c.JSON(http.StatusAccepted, postCommandsResponse{Results: results})
	}
}
