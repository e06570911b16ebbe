package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"revtrail/revision"
	"revtrail/revision/resolve"
)

// revisionView 一条修订的展示形式，同时保留原始值与解析后的值
type revisionView struct {
	ID          int64   `json:"id"`
	RevisionID  string  `json:"revision_id"`
	Subject     string  `json:"subject"`
	Key         string  `json:"key"`
	Field       string  `json:"field"`
	OldValue    *string `json:"old_value"`
	NewValue    *string `json:"new_value"`
	Old         string  `json:"old"`
	New         string  `json:"new"`
	ActorID     *string `json:"user_id"`
	ActorType   *string `json:"user_type"`
	Name        string  `json:"name"`
	IP          *string `json:"ip"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"created_at"`
}

func viewOf(ctx context.Context, r *resolve.Resolver, rev *revision.Revision) revisionView {
	return revisionView{
		ID:          rev.ID,
		RevisionID:  rev.RevisionID,
		Subject:     rev.SubjectRef(),
		Key:         rev.Key,
		Field:       r.FieldName(rev),
		OldValue:    rev.OldValue,
		NewValue:    rev.NewValue,
		Old:         r.OldValue(ctx, rev),
		New:         r.NewValue(ctx, rev),
		ActorID:     rev.ActorID,
		ActorType:   rev.ActorType,
		Name:        revision.Deref(rev.Name),
		IP:          rev.IP,
		Description: revision.Deref(rev.Description),
		CreatedAt:   rev.CreatedAt.UTC().Format(revision.TimeLayout),
	}
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRevisions 按 --output 输出修订列表
func (c *cli) printRevisions(ctx context.Context, r *resolve.Resolver, revs []*revision.Revision) error {
	views := make([]revisionView, 0, len(revs))
	for _, rev := range revs {
		views = append(views, viewOf(ctx, r, rev))
	}
	if c.output == "json" {
		return c.printJSON(views)
	}
	if len(views) == 0 {
		_, err := fmt.Fprintln(c.out, "No revisions.")
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSUBJECT\tFIELD\tOLD\tNEW\tBY")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.CreatedAt, v.Subject, v.Field, cell(v.Old), cell(v.New), v.Name)
	}
	return w.Flush()
}

// printResult 输出维护命令的结果
func (c *cli) printResult(fields map[string]any, text string) error {
	if c.output == "json" {
		return c.printJSON(fields)
	}
	_, err := fmt.Fprintln(c.out, text)
	return err
}

// cell 表格单元格去掉换行并截断
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if runes := []rune(s); len(runes) > 60 {
		return string(runes[:57]) + "..."
	}
	return s
}
