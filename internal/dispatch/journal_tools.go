package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"calmd/internal/calmerr"
	"calmd/internal/model"
)

func (d *Dispatcher) registerJournalTools() {
	d.register("store_journal_entry", d.handleStoreJournalEntry)
	d.register("list_journal_entries", d.handleListJournalEntries)
	d.register("get_journal_entry", d.handleGetJournalEntry)
	d.register("mark_entries_reflected", d.handleMarkEntriesReflected)
}

func (d *Dispatcher) handleStoreJournalEntry(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	content, err := requireString(args, "content")
	if err != nil {
		return nil, err
	}
	j := &model.JournalEntry{
		ID:        "journal_" + uuid.NewString(),
		Content:   content,
		Reflected: false,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.Meta.InsertJournalEntry(j); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to persist journal entry")
	}
	return j, nil
}

func (d *Dispatcher) handleListJournalEntries(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var (
		entries []*model.JournalEntry
		err     error
	)
	if argBool(args, "unreflected_only", false) {
		entries, err = d.Meta.ListUnreflectedJournalEntries(argInt(args, "limit", 100))
	} else {
		entries, err = d.Meta.ListJournalEntries(argInt(args, "limit", 0))
	}
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to list journal entries")
	}
	return map[string]interface{}{"entries": entries, "count": len(entries)}, nil
}

func (d *Dispatcher) handleGetJournalEntry(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	j, err := d.Meta.GetJournalEntry(id)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to load journal entry %s", id)
	}
	if j == nil {
		return nil, calmerr.New(calmerr.KindNotFound, "journal entry %s not found", id)
	}
	return j, nil
}

func (d *Dispatcher) handleMarkEntriesReflected(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ids := argStringSlice(args, "ids")
	if len(ids) == 0 {
		return nil, calmerr.New(calmerr.KindValidation, "ids must be a non-empty array")
	}
	if err := d.Meta.MarkEntriesReflected(ids); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to mark entries reflected")
	}
	return map[string]interface{}{"ok": true, "count": len(ids)}, nil
}
