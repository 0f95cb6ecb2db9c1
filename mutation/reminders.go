// ABOUTME: Reminder mutations: staging, promotion of pending reminders, toggles and deletes
// ABOUTME: Work on one reminder is serialized in issuance order; different reminders run concurrently
package mutation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/harperreed/spruce/backend"
	"github.com/harperreed/spruce/models"
)

// StageReminder adds a pending reminder to the prospect locally. Nothing is sent to the
// backend until the reminder is persisted by AddReminder or promoted by a toggle.
func (e *Executor) StageReminder(prospectID models.ID, in models.ReminderInput) (models.Reminder, error) {
	if prospectID.IsPending() {
		return models.Reminder{}, fmt.Errorf("%s: %w", prospectID, ErrNotPersisted)
	}
	if err := in.Validate(); err != nil {
		return models.Reminder{}, err
	}
	p, ok := e.store.Get(prospectID)
	if !ok {
		return models.Reminder{}, fmt.Errorf("%s: %w", prospectID, ErrUnknownProspect)
	}
	if err := models.CheckReminderSlot(p.Reminders, in.DueAt, e.maxReminders, models.ID{}); err != nil {
		return models.Reminder{}, err
	}

	now := e.now().UTC()
	r := models.Reminder{
		ID:         models.NewPendingID(),
		ProspectID: prospectID.Value(),
		DueAt:      in.DueAt,
		Note:       in.Note,
		Completed:  in.Completed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var slotErr error
	e.store.Update(prospectID, func(p *models.Prospect) {
		// Re-check under the store lock in case another reminder landed meanwhile.
		if slotErr = models.CheckReminderSlot(p.Reminders, in.DueAt, e.maxReminders, models.ID{}); slotErr != nil {
			return
		}
		p.Reminders = append(p.Reminders, r)
	})
	if slotErr != nil {
		return models.Reminder{}, slotErr
	}
	return r, nil
}

// AddReminder stages a reminder and persists it. Validation failures (duplicate day, cap)
// reject it before any remote call. If the insert fails the reminder stays staged.
func (e *Executor) AddReminder(ctx context.Context, prospectID models.ID, in models.ReminderInput) (models.Reminder, error) {
	staged, err := e.StageReminder(prospectID, in)
	if err != nil {
		return models.Reminder{}, e.fail(OpAddReminder, prospectID.String(), err)
	}

	slot := e.queue.reserve(e.queueKey(staged.ID))
	defer slot.release()
	slot.wait()

	e.notify(LevelPending, OpAddReminder, staged.ID.String(), nil)
	done := e.begin()
	defer done()

	current, ok := e.reminder(prospectID, staged.ID)
	if !ok {
		return models.Reminder{}, fmt.Errorf("%s: %w", staged.ID, ErrUnknownReminder)
	}
	persisted, err := e.backend.CreateReminder(ctx, prospectID.Value(), reminderInput(current))
	if err != nil {
		return models.Reminder{}, e.fail(OpAddReminder, staged.ID.String(), fmt.Errorf("failed to add reminder: %w", err))
	}
	e.promote(prospectID, staged.ID, persisted, !slot.latest())
	e.confirm(e.queueKey(staged.ID), persisted)
	e.notify(LevelSuccess, OpAddReminder, persisted.ID.String(), nil)
	return persisted, nil
}

// UpdateReminder changes a reminder's date and note. The change is applied locally at once
// and rolled back if the write fails, unless a newer change to the same reminder was issued.
func (e *Executor) UpdateReminder(ctx context.Context, prospectID, reminderID models.ID, in models.ReminderInput) (models.Reminder, error) {
	if err := in.Validate(); err != nil {
		return models.Reminder{}, e.fail(OpUpdateReminder, reminderID.String(), err)
	}
	p, ok := e.store.Get(prospectID)
	if !ok {
		return models.Reminder{}, fmt.Errorf("%s: %w", prospectID, ErrUnknownProspect)
	}
	reminderID = e.resolve(reminderID)
	if err := models.CheckReminderSlot(p.Reminders, in.DueAt, e.maxReminders, reminderID); err != nil {
		return models.Reminder{}, e.fail(OpUpdateReminder, reminderID.String(), err)
	}
	return e.applyReminder(ctx, OpUpdateReminder, prospectID, reminderID, func(r *models.Reminder) {
		r.DueAt = in.DueAt
		r.Note = in.Note
		r.Completed = in.Completed
	})
}

// ToggleReminder sets the completed flag. A pending reminder is promoted first: inserted,
// then updated with the flag, then swapped in place for the persisted one. Toggles on the
// same reminder complete in the order they were issued.
func (e *Executor) ToggleReminder(ctx context.Context, prospectID, reminderID models.ID, completed bool) (models.Reminder, error) {
	return e.applyReminder(ctx, OpToggleReminder, prospectID, e.resolve(reminderID), func(r *models.Reminder) {
		r.Completed = completed
	})
}

// applyReminder runs the optimistic flip and the queue reservation synchronously, then
// waits its turn and writes. Only the newest queued change reconciles the store: with the
// row it wrote, or on failure with the last row the backend accepted.
func (e *Executor) applyReminder(ctx context.Context, op Op, prospectID, reminderID models.ID, change func(*models.Reminder)) (models.Reminder, error) {
	if prospectID.IsPending() {
		return models.Reminder{}, fmt.Errorf("%s: %w", prospectID, ErrNotPersisted)
	}

	key := e.queueKey(reminderID)
	var prior models.Reminder
	var found bool

	e.reminderMu.Lock()
	_, ok := e.store.Update(prospectID, func(p *models.Prospect) {
		i := p.ReminderIndex(reminderID)
		if i < 0 {
			return
		}
		found = true
		prior = p.Reminders[i]
		change(&p.Reminders[i])
	})
	if !ok || !found {
		e.reminderMu.Unlock()
		if !ok {
			return models.Reminder{}, fmt.Errorf("%s: %w", prospectID, ErrUnknownProspect)
		}
		return models.Reminder{}, fmt.Errorf("%s: %w", reminderID, ErrUnknownReminder)
	}
	slot := e.queue.reserve(key)
	// The first change in line sees the row as last confirmed; later ones see earlier
	// optimistic flips.
	if _, seeded := e.confirmed[key]; !seeded {
		e.confirmed[key] = prior
	}
	e.reminderMu.Unlock()

	defer slot.release()
	slot.wait()

	e.notify(LevelPending, op, reminderID.String(), nil)
	done := e.begin()
	defer done()

	// An earlier toggle in the queue may have promoted this reminder while we waited.
	target := e.resolve(reminderID)
	desired := prior
	change(&desired)
	desired.ID = target

	if target.IsPending() {
		return e.promoteAndApply(ctx, op, key, prospectID, prior, desired, slot)
	}

	updated, err := e.backend.UpdateReminder(ctx, target.Value(), reminderInput(desired))
	if err != nil {
		e.settle(prospectID, key, target, slot, nil)
		return models.Reminder{}, e.fail(op, target.String(), fmt.Errorf("failed to update reminder: %w", err))
	}
	e.settle(prospectID, key, target, slot, &updated)
	e.notify(LevelSuccess, op, target.String(), nil)
	return updated, nil
}

// promoteAndApply persists a pending reminder as it was before the change, then applies
// the change to the persisted row.
func (e *Executor) promoteAndApply(ctx context.Context, op Op, key string, prospectID models.ID, prior, desired models.Reminder, slot *slot) (models.Reminder, error) {
	pendingID := prior.ID

	inserted, err := e.backend.CreateReminder(ctx, prospectID.Value(), reminderInput(prior))
	if err != nil {
		e.settle(prospectID, key, pendingID, slot, nil)
		return models.Reminder{}, e.fail(op, pendingID.String(), fmt.Errorf("failed to save reminder: %w", err))
	}
	e.promote(prospectID, pendingID, inserted, true)
	e.confirm(key, inserted)

	updated, err := e.backend.UpdateReminder(ctx, inserted.ID.Value(), reminderInput(desired))
	if err != nil {
		e.settle(prospectID, key, inserted.ID, slot, nil)
		return models.Reminder{}, e.fail(op, inserted.ID.String(), fmt.Errorf("failed to update reminder: %w", err))
	}
	e.settle(prospectID, key, inserted.ID, slot, &updated)
	e.notify(LevelSuccess, op, updated.ID.String(), nil)
	return updated, nil
}

// confirm records r as accepted by the backend while changes to it are queued.
func (e *Executor) confirm(key string, r models.Reminder) {
	e.reminderMu.Lock()
	defer e.reminderMu.Unlock()
	if _, ok := e.confirmed[key]; ok {
		e.confirmed[key] = r
	}
}

// settle finishes one queued change. A written row becomes the confirmed state. If no
// newer change is queued the store entry id is set to the confirmed state and the
// record is dropped.
func (e *Executor) settle(prospectID models.ID, key string, id models.ID, slot *slot, written *models.Reminder) {
	e.reminderMu.Lock()
	defer e.reminderMu.Unlock()

	if written != nil {
		e.confirmed[key] = *written
	}
	if !slot.latest() {
		return
	}
	last, ok := e.confirmed[key]
	delete(e.confirmed, key)
	if !ok {
		return
	}
	if written == nil {
		last.ID = id
		e.restoreReminder(prospectID, id, last)
		return
	}
	e.replaceReminder(prospectID, id, last)
}

// DeleteReminder removes a reminder once the backend confirms. A pending reminder that was
// never persisted is removed locally.
func (e *Executor) DeleteReminder(ctx context.Context, prospectID, reminderID models.ID) error {
	reminderID = e.resolve(reminderID)
	if _, ok := e.reminder(prospectID, reminderID); !ok {
		return fmt.Errorf("%s: %w", reminderID, ErrUnknownReminder)
	}

	slot := e.queue.reserve(e.queueKey(reminderID))
	defer slot.release()
	slot.wait()

	defer e.forget(slot)

	target := e.resolve(reminderID)
	if target.IsPending() {
		e.removeReminder(prospectID, target)
		return nil
	}

	e.notify(LevelPending, OpDeleteReminder, target.String(), nil)
	done := e.begin()
	err := e.backend.DeleteReminder(ctx, target.Value())
	done()
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		return e.fail(OpDeleteReminder, target.String(), fmt.Errorf("failed to delete reminder: %w", err))
	}
	e.removeReminder(prospectID, target)
	e.notify(LevelSuccess, OpDeleteReminder, target.String(), nil)
	return nil
}

// forget drops the confirmed state once the last queued change on a reminder is done.
func (e *Executor) forget(slot *slot) {
	e.reminderMu.Lock()
	defer e.reminderMu.Unlock()
	if slot.latest() {
		delete(e.confirmed, slot.key)
	}
}

// resolve maps a pending reminder ID onto its persisted ID once promoted.
func (e *Executor) resolve(id models.ID) models.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if server, ok := e.promoted[id]; ok {
		return server
	}
	return id
}

// queueKey keeps a reminder on one queue across promotion.
func (e *Executor) queueKey(id models.ID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if local, ok := e.aliases[id]; ok {
		return local.String()
	}
	return id.String()
}

// promote records the persisted identity of a pending reminder and swaps it in place.
// With keepLocal the entry keeps its locally edited fields, since newer optimistic
// changes are still waiting to be written.
func (e *Executor) promote(prospectID, pendingID models.ID, persisted models.Reminder, keepLocal bool) {
	e.mu.Lock()
	e.promoted[pendingID] = persisted.ID
	e.aliases[persisted.ID] = pendingID
	e.mu.Unlock()

	if keepLocal {
		if local, ok := e.reminder(prospectID, pendingID); ok {
			persisted.DueAt = local.DueAt
			persisted.Note = local.Note
			persisted.Completed = local.Completed
		}
	}
	e.replaceReminder(prospectID, pendingID, persisted)
	e.logger.Debug("reminder promoted", zap.String("pending_id", pendingID.String()), zap.String("id", persisted.ID.String()))
}

func (e *Executor) reminder(prospectID, id models.ID) (models.Reminder, bool) {
	p, ok := e.store.Get(prospectID)
	if !ok {
		return models.Reminder{}, false
	}
	i := p.ReminderIndex(id)
	if i < 0 {
		return models.Reminder{}, false
	}
	return p.Reminders[i], true
}

// replaceReminder puts r where the reminder old sits. If r's ID is already present (a
// refetch delivered it first) the old entry is dropped instead.
func (e *Executor) replaceReminder(prospectID, old models.ID, r models.Reminder) {
	e.store.Update(prospectID, func(p *models.Prospect) {
		i := p.ReminderIndex(old)
		existing := p.ReminderIndex(r.ID)
		switch {
		case i >= 0 && existing >= 0 && existing != i:
			p.Reminders[existing] = r
			p.Reminders = append(p.Reminders[:i], p.Reminders[i+1:]...)
		case i >= 0:
			p.Reminders[i] = r
		case existing >= 0:
			p.Reminders[existing] = r
		default:
			p.Reminders = append(p.Reminders, r)
		}
	})
}

func (e *Executor) restoreReminder(prospectID, id models.ID, prior models.Reminder) {
	e.store.Update(prospectID, func(p *models.Prospect) {
		if i := p.ReminderIndex(id); i >= 0 {
			p.Reminders[i] = prior
		}
	})
}

func (e *Executor) removeReminder(prospectID, id models.ID) {
	e.store.Update(prospectID, func(p *models.Prospect) {
		if i := p.ReminderIndex(id); i >= 0 {
			p.Reminders = append(p.Reminders[:i], p.Reminders[i+1:]...)
		}
	})
}

func reminderInput(r models.Reminder) models.ReminderInput {
	return models.ReminderInput{DueAt: r.DueAt, Note: r.Note, Completed: r.Completed}
}
