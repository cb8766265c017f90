package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alfredjeanlab/envtree/internal/crypt"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/store/memstore"
)

// seedStore returns a memstore with two projects, one member and two
// configs, one linked to the other.
func seedStore(t *testing.T) *memstore.Store {
	t.Helper()
	ctx := context.Background()
	ms := memstore.New()

	if err := ms.CreateUser(ctx, &model.User{ID: "usr-1", Email: "alice@example.com", AuthToken: "secret-token"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	for _, p := range []*model.Project{{ID: "prj-zzz", Name: "web"}, {ID: "prj-aaa", Name: "api"}} {
		if err := ms.CreateProject(ctx, p); err != nil {
			t.Fatalf("create project: %v", err)
		}
	}
	if err := ms.AddProjectMember(ctx, "prj-aaa", "usr-1"); err != nil {
		t.Fatalf("add member: %v", err)
	}

	base := &model.Config{
		ID: "cfg-base", ProjectID: "prj-aaa", Name: "base", Version: "v1",
		Values: model.ValueMap{"DB_URL": {Value: model.StringPtr("postgres://db"), Hidden: true}},
	}
	child := &model.Config{
		ID: "cfg-child", ProjectID: "prj-aaa", Name: "child", Version: "v1",
		LinkedConfigID: "cfg-base", LinkedProjectConfigID: "prj-aaa",
		Values: model.ValueMap{"TIMEOUT": {Value: model.StringPtr("5")}},
	}
	for _, c := range []*model.Config{base, child} {
		if err := ms.CreateConfig(ctx, c); err != nil {
			t.Fatalf("create config: %v", err)
		}
	}
	return ms
}

func TestExportJSONL_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), memstore.New(), nil, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != FormatVersion || h.Type != "header" || h.ProjectCount != 0 || h.ConfigCount != 0 || h.Sealed {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestExportJSONL_ProjectsAndConfigs(t *testing.T) {
	ms := seedStore(t)

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, nil, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	// 1 header + 2 projects + 2 configs
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), buf.String())
	}
	if strings.Contains(buf.String(), "secret-token") || strings.Contains(buf.String(), "alice@example.com") {
		t.Fatal("export must not contain user accounts")
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.ProjectCount != 2 || h.ConfigCount != 2 {
		t.Fatalf("unexpected counts: %+v", h)
	}

	var first struct {
		Type string        `json:"type"`
		Data model.Project `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &first); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if first.Type != "project" || first.Data.ID != "prj-aaa" {
		t.Fatalf("projects should be sorted by ID, first = %+v", first)
	}
	if len(first.Data.Members) != 1 || first.Data.Members[0] != "usr-1" {
		t.Fatalf("members = %v, want [usr-1]", first.Data.Members)
	}

	var child struct {
		Type string       `json:"type"`
		Data configRecord `json:"data"`
	}
	found := false
	for _, line := range lines[3:] {
		if err := json.Unmarshal([]byte(line), &child); err != nil {
			t.Fatalf("unmarshal config: %v", err)
		}
		if child.Data.ID == "cfg-child" {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("cfg-child missing from export")
	}
	if child.Type != "config" || child.Data.LinkedConfigID != "cfg-base" {
		t.Fatalf("unexpected child record: %+v", child)
	}
	if v := child.Data.Values["TIMEOUT"].Value; v == nil || *v != "5" {
		t.Fatalf("TIMEOUT = %v, want 5", v)
	}
	if child.Data.SealedValues != nil {
		t.Fatal("unsealed export should not carry sealed_values")
	}
}

func TestExportJSONL_Sealed(t *testing.T) {
	ms := seedStore(t)
	key, err := crypt.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	box, err := crypt.ParseKey(key)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, box, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(buf.String(), "postgres://db") {
		t.Fatal("sealed export leaked a plaintext value")
	}

	lines := nonEmptyLines(buf.String())
	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if !h.Sealed {
		t.Fatal("header should be marked sealed")
	}

	for _, line := range lines[3:] {
		var rec struct {
			Data configRecord `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("unmarshal config: %v", err)
		}
		if rec.Data.ID != "cfg-base" {
			continue
		}
		if rec.Data.Values != nil {
			t.Fatal("sealed record should not carry clear values")
		}
		plain, err := box.Open(rec.Data.SealedValues)
		if err != nil {
			t.Fatalf("open sealed values: %v", err)
		}
		var values model.ValueMap
		if err := json.Unmarshal(plain, &values); err != nil {
			t.Fatalf("unmarshal values: %v", err)
		}
		if v := values["DB_URL"]; v.Value == nil || *v.Value != "postgres://db" || !v.Hidden {
			t.Fatalf("DB_URL = %+v", v)
		}
		return
	}
	t.Fatal("cfg-base missing from export")
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
