package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"choreboard/domain"
)

// Config describes how to reach the hosted row store. The client is built
// explicitly from this struct; there is no ambient global.
type Config struct {
	ConnectionString string
	TasksTable       string
	MembersTable     string
}

// Client provides access to the hosted row store backing the board.
type Client struct {
	taskTable   *aztables.Client
	memberTable *aztables.Client
	notifier    Notifier
}

// New creates a Client from the given configuration. notifier may be nil
// when no change feed should be fed from this process.
func New(cfg Config, notifier Notifier) (*Client, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(cfg.ConnectionString, &opts)
	if err != nil {
		return nil, err
	}
	return &Client{
		taskTable:   svc.NewClient(cfg.TasksTable),
		memberTable: svc.NewClient(cfg.MembersTable),
		notifier:    notifier,
	}, nil
}

// Tasks returns the task gateway view of the client.
func (c *Client) Tasks() Gateway[domain.Task] { return &taskTable{c} }

// Members returns the member gateway view of the client.
func (c *Client) Members() Gateway[domain.Member] { return &memberTable{c} }

func (c *Client) notify(ctx context.Context, scope, entityType string, kind domain.ChangeKind, id string, row any) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(ctx, scope, entityType, kind, id, row)
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

type taskRow struct {
	aztables.Entity
	Title     string   `json:"Title"`
	Icon      string   `json:"Icon,omitempty"`
	Reward    *float64 `json:"Reward,omitempty"`
	Lane      string   `json:"Lane"`
	Assignee  string   `json:"Assignee,omitempty"`
	CreatedAt int64    `json:"CreatedAt"`
}

func taskToRow(scope string, t domain.Task) taskRow {
	return taskRow{
		Entity:    aztables.Entity{PartitionKey: scope, RowKey: t.ID},
		Title:     t.Title,
		Icon:      t.Icon,
		Reward:    t.Reward,
		Lane:      string(t.Lane),
		Assignee:  t.Assignee,
		CreatedAt: t.CreatedAt,
	}
}

func rowToTask(r taskRow) domain.Task {
	return domain.Task{
		ID:        r.RowKey,
		Title:     r.Title,
		Icon:      r.Icon,
		Reward:    r.Reward,
		Lane:      domain.Lane(r.Lane),
		Assignee:  r.Assignee,
		CreatedAt: r.CreatedAt,
	}
}

type taskTable struct{ c *Client }

func (g *taskTable) FetchAll(ctx context.Context, scope string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + scope + "'"
	pager := g.c.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var row taskRow
			if err := json.Unmarshal(e, &row); err != nil {
				return nil, err
			}
			tasks = append(tasks, rowToTask(row))
		}
	}
	return tasks, nil
}

func (g *taskTable) Insert(ctx context.Context, scope string, draft domain.Task) (string, error) {
	id := uuid.NewString()
	stored := draft.WithEntityID(id)
	payload, err := json.Marshal(taskToRow(scope, stored))
	if err != nil {
		return "", err
	}
	if _, err := g.c.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return "", err
	}
	g.c.notify(ctx, scope, domain.EntityTasks, domain.ChangeInsert, id, stored)
	return id, nil
}

func (g *taskTable) Update(ctx context.Context, scope string, ent domain.Task) error {
	payload, err := json.Marshal(taskToRow(scope, ent))
	if err != nil {
		return err
	}
	if _, err := g.c.taskTable.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
		return err
	}
	g.c.notify(ctx, scope, domain.EntityTasks, domain.ChangeUpdate, ent.ID, ent)
	return nil
}

func (g *taskTable) Delete(ctx context.Context, scope string, id string) error {
	if _, err := g.c.taskTable.DeleteEntity(ctx, scope, id, nil); err != nil && !isStatus(err, 404) {
		return err
	}
	g.c.notify(ctx, scope, domain.EntityTasks, domain.ChangeDelete, id, nil)
	return nil
}

type memberRow struct {
	aztables.Entity
	Name      string `json:"Name"`
	Avatar    string `json:"Avatar,omitempty"`
	Color     string `json:"Color,omitempty"`
	BirthDate string `json:"BirthDate,omitempty"`
	CreatedAt int64  `json:"CreatedAt"`
}

func memberToRow(scope string, m domain.Member) memberRow {
	return memberRow{
		Entity:    aztables.Entity{PartitionKey: scope, RowKey: m.ID},
		Name:      m.Name,
		Avatar:    m.Avatar,
		Color:     m.Color,
		BirthDate: m.BirthDate,
		CreatedAt: m.CreatedAt,
	}
}

func rowToMember(r memberRow) domain.Member {
	return domain.Member{
		ID:        r.RowKey,
		Name:      r.Name,
		Avatar:    r.Avatar,
		Color:     r.Color,
		BirthDate: r.BirthDate,
		CreatedAt: r.CreatedAt,
	}
}

type memberTable struct{ c *Client }

func (g *memberTable) FetchAll(ctx context.Context, scope string) ([]domain.Member, error) {
	filter := "PartitionKey eq '" + scope + "'"
	pager := g.c.memberTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	members := []domain.Member{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var row memberRow
			if err := json.Unmarshal(e, &row); err != nil {
				return nil, err
			}
			members = append(members, rowToMember(row))
		}
	}
	return members, nil
}

func (g *memberTable) Insert(ctx context.Context, scope string, draft domain.Member) (string, error) {
	id := uuid.NewString()
	stored := draft.WithEntityID(id)
	payload, err := json.Marshal(memberToRow(scope, stored))
	if err != nil {
		return "", err
	}
	if _, err := g.c.memberTable.AddEntity(ctx, payload, nil); err != nil {
		return "", err
	}
	g.c.notify(ctx, scope, domain.EntityMembers, domain.ChangeInsert, id, stored)
	return id, nil
}

func (g *memberTable) Update(ctx context.Context, scope string, ent domain.Member) error {
	payload, err := json.Marshal(memberToRow(scope, ent))
	if err != nil {
		return err
	}
	if _, err := g.c.memberTable.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
		return err
	}
	g.c.notify(ctx, scope, domain.EntityMembers, domain.ChangeUpdate, ent.ID, ent)
	return nil
}

func (g *memberTable) Delete(ctx context.Context, scope string, id string) error {
	if _, err := g.c.memberTable.DeleteEntity(ctx, scope, id, nil); err != nil && !isStatus(err, 404) {
		return err
	}
	g.c.notify(ctx, scope, domain.EntityMembers, domain.ChangeDelete, id, nil)
	return nil
}
