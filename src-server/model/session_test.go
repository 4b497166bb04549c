package model_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"modweb/src-server/model"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	bundb := bun.NewDB(db, sqlitedialect.New())
	if err := model.CreateSchema(bundb); err != nil {
		t.Fatal(err)
	}
	return bundb
}

func TestSessionCRUD(t *testing.T) {
	bundb := newTestDB(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	id, err := model.CreateSession(ctx, bundb, `{"state":"abc"}`, expires)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Error("expected a generated session id")
	}

	// read back
	sessionModel, err := model.GetSession(ctx, bundb, id)
	if err != nil {
		t.Fatal(err)
	}
	if sessionModel == nil {
		t.Fatal("session should exist")
	}
	if sessionModel.Data != `{"state":"abc"}` {
		t.Error("unexpected session data", sessionModel.Data)
	}
	if sessionModel.Expires != expires {
		t.Error("unexpected expires", sessionModel.Expires)
	}

	// update
	if err := model.UpdateSession(ctx, bundb, id, `{"token":"xyz"}`, ""); err != nil {
		t.Fatal(err)
	}
	sessionModel, err = model.GetSession(ctx, bundb, id)
	if err != nil {
		t.Fatal(err)
	}
	if sessionModel.Data != `{"token":"xyz"}` {
		t.Error("update didn't stick", sessionModel.Data)
	}

	// delete
	if err := model.DeleteSession(ctx, bundb, id); err != nil {
		t.Fatal(err)
	}
	sessionModel, err = model.GetSession(ctx, bundb, id)
	if err != nil {
		t.Fatal(err)
	}
	if sessionModel != nil {
		t.Error("session should be gone")
	}
}

func TestSessionAbsent(t *testing.T) {
	bundb := newTestDB(t)
	ctx := context.Background()

	// unknown id is an absence, never an error
	sessionModel, err := model.GetSession(ctx, bundb, "no-such-id")
	if err != nil {
		t.Error("unknown id should not be an error:", err)
	}
	if sessionModel != nil {
		t.Error("unknown id should return nil")
	}

	// deleting an absent row is not an error either
	if err := model.DeleteSession(ctx, bundb, "no-such-id"); err != nil {
		t.Error("deleting an absent session should not be an error:", err)
	}
}
