package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

// Reconciler decides insert-vs-update for normalized messages and keeps
// thread aggregates consistent. Aggregates are always recomputed from current
// message state, never incremented, so concurrent and retried writes stay
// convergent.
type Reconciler struct {
	store Store
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// ReconcileResult reports what one reconciliation did.
type ReconcileResult struct {
	Message *models.Message
	// Inserted is true for a first-seen message, false for a merge into an
	// existing one.
	Inserted bool
	// ContentChanged is true when the message's content hash changed, which
	// is what re-triggers AI analysis. Flag-only updates leave it false.
	ContentChanged bool
}

// Reconcile applies one normalized message to the store. The dedup key is
// (channel, provider message id): a hit merges mutable fields and never
// overwrites the original sent timestamp, body, or sender; a miss resolves or
// creates the thread and inserts. Thread aggregates are recomputed either way.
func (r *Reconciler) Reconcile(ctx context.Context, channelID string, nm *models.NormalizedMessage) (*ReconcileResult, error) {
	if nm == nil {
		return nil, fmt.Errorf("normalized message is nil")
	}
	if nm.Message.ProviderMessageID == "" {
		return nil, fmt.Errorf("normalized message has no provider message id")
	}
	if nm.ProviderThreadID == "" {
		return nil, fmt.Errorf("normalized message %s has no provider thread id", nm.Message.ProviderMessageID)
	}

	existing, err := r.store.GetMessageByProviderID(ctx, channelID, nm.Message.ProviderMessageID)
	if err != nil && !errors.Is(err, ErrMessageNotFound) {
		return nil, fmt.Errorf("failed to look up message: %w", err)
	}

	var result *ReconcileResult
	if existing != nil {
		result, err = r.update(ctx, existing, nm)
	} else {
		result, err = r.insert(ctx, channelID, nm)
	}
	if err != nil {
		return nil, err
	}

	if err := r.recomputeThread(ctx, result.Message.ThreadID); err != nil {
		return nil, err
	}

	return result, nil
}

// update merges the mutable fields of an already-known message: flags,
// reactions, labels, custom headers. Body and HTML fill in only when the
// stored copy is empty (a headers-only fetch completed later); that is the
// one path that changes the content hash.
func (r *Reconciler) update(ctx context.Context, existing *models.Message, nm *models.NormalizedMessage) (*ReconcileResult, error) {
	incoming := nm.Message

	existing.Flags = incoming.Flags
	if len(incoming.Reactions) > 0 {
		existing.Reactions = mergeReactions(existing.Reactions, incoming.Reactions)
	}
	if len(incoming.Metadata.LabelIDs) > 0 {
		existing.Metadata.LabelIDs = incoming.Metadata.LabelIDs
	}
	if len(incoming.Metadata.CustomHeaders) > 0 {
		existing.Metadata.CustomHeaders = incoming.Metadata.CustomHeaders
	}

	contentChanged := false
	if existing.BodyText == "" && incoming.BodyText != "" {
		existing.BodyText = incoming.BodyText
		contentChanged = true
	}
	if existing.BodyHTML == "" && incoming.BodyHTML != "" {
		existing.BodyHTML = incoming.BodyHTML
		contentChanged = true
	}
	if existing.Snippet == "" {
		existing.Snippet = incoming.Snippet
	}
	if contentChanged {
		existing.ContentHash = incoming.ContentHash
		// New content version: the previous AI outcome no longer applies.
		existing.AIStatus = models.AIStatusPending
		existing.AIError = ""
	}

	if err := r.store.UpdateMessage(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}

	return &ReconcileResult{Message: existing, Inserted: false, ContentChanged: contentChanged}, nil
}

func (r *Reconciler) insert(ctx context.Context, channelID string, nm *models.NormalizedMessage) (*ReconcileResult, error) {
	thread, err := r.store.GetThreadByProviderID(ctx, channelID, nm.ProviderThreadID)
	if err != nil {
		if !errors.Is(err, ErrThreadNotFound) {
			return nil, fmt.Errorf("failed to look up thread: %w", err)
		}
		thread = &models.Thread{
			ChannelID:        channelID,
			ProviderThreadID: nm.ProviderThreadID,
			Subject:          nm.Message.Metadata.Subject,
			AIStatus:         models.AIStatusPending,
		}
		if err := r.store.CreateThread(ctx, thread); err != nil {
			return nil, fmt.Errorf("failed to create thread: %w", err)
		}
	}

	msg := nm.Message
	msg.ChannelID = channelID
	msg.ThreadID = thread.ID

	siblings, err := r.store.ListThreadMessages(ctx, thread.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread messages: %w", err)
	}
	maxOrdinal := 0
	for _, sibling := range siblings {
		if sibling.MessageNumber > maxOrdinal {
			maxOrdinal = sibling.MessageNumber
		}
	}
	msg.MessageNumber = maxOrdinal + 1

	header := nm.Header
	if err := r.store.InsertMessage(ctx, &msg, nm.Attachments, &header); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	return &ReconcileResult{Message: &msg, Inserted: true, ContentChanged: true}, nil
}

// recomputeThread reloads the thread's messages, reassigns deterministic
// ordinals, and recomputes the aggregate fields from scratch.
func (r *Reconciler) recomputeThread(ctx context.Context, threadID string) error {
	thread, err := r.store.GetThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to reload thread: %w", err)
	}

	messages, err := r.store.ListThreadMessages(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to list thread messages: %w", err)
	}

	assignments := AssignOrdinals(messages)
	if len(assignments) > 0 {
		if err := r.store.UpdateMessageOrdinals(ctx, threadID, assignments); err != nil {
			return fmt.Errorf("failed to update ordinals: %w", err)
		}
	}

	ComputeThreadAggregates(thread, messages)

	if err := r.store.UpdateThreadAggregates(ctx, thread); err != nil {
		return fmt.Errorf("failed to update thread aggregates: %w", err)
	}

	return nil
}

// AssignOrdinals orders a thread's messages by (sent timestamp, provider
// message id) and returns the assignments that differ from the stored
// ordinals. The sort key makes the final numbering independent of arrival
// order, so retried partial syncs converge on the same result.
func AssignOrdinals(messages []*models.Message) []OrdinalAssignment {
	ordered := make([]*models.Message, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].SentAt.Equal(ordered[j].SentAt) {
			return ordered[i].SentAt.Before(ordered[j].SentAt)
		}
		return ordered[i].ProviderMessageID < ordered[j].ProviderMessageID
	})

	var assignments []OrdinalAssignment
	for i, msg := range ordered {
		number := i + 1
		if msg.MessageNumber != number {
			msg.MessageNumber = number
			assignments = append(assignments, OrdinalAssignment{MessageID: msg.ID, MessageNumber: number})
		}
	}
	return assignments
}

// ComputeThreadAggregates recomputes the thread's derived fields from the
// full current message set: message count, flag union, participant union,
// last-message timestamp, and label union.
func ComputeThreadAggregates(thread *models.Thread, messages []*models.Message) {
	thread.MessageCount = len(messages)
	thread.Flags = models.ThreadFlags{}
	thread.LastMessageAt = nil

	participants := make(map[string]bool)
	labels := make(map[string]bool)
	var participantOrder, labelOrder []string
	var last time.Time

	for _, msg := range messages {
		thread.Flags.Unread = thread.Flags.Unread || msg.Flags.Unread
		thread.Flags.Starred = thread.Flags.Starred || msg.Flags.Starred
		thread.Flags.Inbox = thread.Flags.Inbox || msg.Flags.Inbox
		thread.Flags.Spam = thread.Flags.Spam || msg.Flags.Spam
		thread.Flags.Trash = thread.Flags.Trash || msg.Flags.Trash
		thread.Flags.Important = thread.Flags.Important || msg.Priority == models.PriorityHigh || msg.Priority == models.PriorityUrgent

		if msg.SentAt.After(last) {
			last = msg.SentAt
		}

		addParticipant := func(a models.Address) {
			if a.Address == "" || participants[a.Address] {
				return
			}
			participants[a.Address] = true
			participantOrder = append(participantOrder, a.Address)
		}
		addParticipant(msg.Sender)
		for _, a := range msg.To {
			addParticipant(a)
		}
		for _, a := range msg.CC {
			addParticipant(a)
		}
		for _, a := range msg.BCC {
			addParticipant(a)
		}
		for _, a := range msg.ReplyTo {
			addParticipant(a)
		}

		for _, label := range msg.Metadata.LabelIDs {
			if !labels[label] {
				labels[label] = true
				labelOrder = append(labelOrder, label)
			}
		}

		if thread.Subject == "" && msg.Metadata.Subject != "" {
			thread.Subject = msg.Metadata.Subject
		}
	}

	if !last.IsZero() {
		thread.LastMessageAt = &last
	}
	thread.Participants = participantOrder
	thread.Labels = labelOrder
}

func mergeReactions(existing, incoming []models.Reaction) []models.Reaction {
	seen := make(map[string]bool, len(existing))
	for _, reaction := range existing {
		seen[reaction.Sender+"\x00"+reaction.Emoji] = true
	}
	merged := existing
	for _, reaction := range incoming {
		key := reaction.Sender + "\x00" + reaction.Emoji
		if !seen[key] {
			seen[key] = true
			merged = append(merged, reaction)
		}
	}
	return merged
}
