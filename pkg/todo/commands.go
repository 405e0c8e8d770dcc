package todo

import (
	"context"
	"fmt"
	"strings"

	"github.com/ormasoftchile/stepwise/pkg/kernel/registry"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
)

// CodeNotFound is returned when a todo ID does not exist.
const CodeNotFound = "NOT_FOUND"

// unchangedConfidence is reported by update when no field changed.
const unchangedConfidence = 0.5

type createInput struct {
	Title       string `json:"title" jsonschema:"minLength=1,description=Todo title"`
	Description string `json:"description,omitempty"`
}

type idInput struct {
	ID string `json:"id" jsonschema:"minLength=1,description=Todo ID"`
}

type updateInput struct {
	ID          string  `json:"id" jsonschema:"minLength=1"`
	Title       *string `json:"title,omitempty" jsonschema:"minLength=1"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

type listInput struct {
	Completed *bool  `json:"completed,omitempty" jsonschema:"description=Only return todos in this state"`
	Sort      string `json:"sort,omitempty" jsonschema:"enum=created,enum=title"`
}

// ListOutput is the data returned by the list command.
type ListOutput struct {
	Items []Todo `json:"items"`
	Count int    `json:"count"`
}

// Commands returns the todo commands bound to store.
func Commands(store *Store) []registry.Command {
	return []registry.Command{
		registry.Typed("create", "Create a todo", func(ctx context.Context, in createInput) (*registry.Result, error) {
			title := strings.TrimSpace(in.Title)
			if title == "" {
				return blankTitle(), nil
			}
			return registry.OK(store.Create(title, in.Description)), nil
		}),
		registry.Typed("get", "Get a todo by ID", func(ctx context.Context, in idInput) (*registry.Result, error) {
			t, ok := store.Get(in.ID)
			if !ok {
				return notFound(in.ID), nil
			}
			return registry.OK(t), nil
		}),
		registry.Typed("toggle", "Flip a todo's completed flag", func(ctx context.Context, in idInput) (*registry.Result, error) {
			t, ok := store.Update(in.ID, func(t *Todo) { t.Completed = !t.Completed })
			if !ok {
				return notFound(in.ID), nil
			}
			state := "incomplete"
			if t.Completed {
				state = "completed"
			}
			return registry.OK(t).WithReasoning(fmt.Sprintf("marked %q %s", t.Title, state)), nil
		}),
		registry.Typed("update", "Update a todo's fields", func(ctx context.Context, in updateInput) (*registry.Result, error) {
			var title string
			if in.Title != nil {
				title = strings.TrimSpace(*in.Title)
				if title == "" {
					return blankTitle(), nil
				}
			}
			changed := false
			t, ok := store.Update(in.ID, func(t *Todo) {
				before := *t
				if in.Title != nil {
					t.Title = title
				}
				if in.Description != nil {
					t.Description = *in.Description
				}
				if in.Completed != nil {
					t.Completed = *in.Completed
				}
				changed = *t != before
			})
			if !ok {
				return notFound(in.ID), nil
			}
			if !changed {
				return registry.OK(t).
					WithConfidence(unchangedConfidence).
					WithReasoning(fmt.Sprintf("update left %q unchanged", t.Title)), nil
			}
			return registry.OK(t), nil
		}),
		registry.Typed("list", "List todos", func(ctx context.Context, in listInput) (*registry.Result, error) {
			items := store.List(in.Completed)
			if in.Sort == "title" {
				byTitle(items)
			}
			return registry.OK(ListOutput{Items: items, Count: len(items)}), nil
		}),
		registry.Typed("delete", "Delete a todo", func(ctx context.Context, in idInput) (*registry.Result, error) {
			t, ok := store.Delete(in.ID)
			if !ok {
				return notFound(in.ID), nil
			}
			return registry.OK(map[string]any{"id": t.ID, "deleted": true}).
				WithReasoning(fmt.Sprintf("deleted %q", t.Title)), nil
		}),
	}
}

// NewRegistry returns a registry holding the todo commands bound to store.
func NewRegistry(store *Store) (*registry.Registry, error) {
	return registry.New(Commands(store)...)
}

func notFound(id string) *registry.Result {
	return registry.Fail(CodeNotFound, fmt.Sprintf("todo %q not found", id)).
		WithSuggestion("run list to see existing todo IDs")
}

func blankTitle() *registry.Result {
	return registry.Fail(schema.CodeValidation, "title must not be blank").
		WithSuggestion("give the todo a non-whitespace title")
}
