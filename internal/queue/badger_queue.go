package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/ternarybob/tendril/internal/interfaces"
)

// ErrNoMessage is returned when the queue has no visible messages
var ErrNoMessage = errors.New("no messages in queue")

// queuedRun is the internal envelope stored in Badger
type queuedRun struct {
	ID           string                `json:"id"`
	Body         interfaces.RunMessage `json:"body"`
	EnqueuedAt   time.Time             `json:"enqueued_at"`
	VisibleAt    time.Time             `json:"visible_at"`
	ReceiveCount int                   `json:"receive_count"`
}

// BadgerQueue implements a persistent run queue on BadgerDB.
// Messages are stored under queue:{name}:msg:{id}; a visibility index at
// queue:{name}:index:{visibleAt}:{id} keeps ready messages scannable in
// delivery order. Unacked messages reappear after the visibility timeout.
type BadgerQueue struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
}

// NewBadgerQueue creates a new Badger-backed run queue
func NewBadgerQueue(db *badger.DB, queueName string, visibilityTimeout time.Duration, maxReceive int) (interfaces.RunQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &BadgerQueue{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
	}, nil
}

// Enqueue adds a run message to the queue, immediately visible
func (q *BadgerQueue) Enqueue(ctx context.Context, msg interfaces.RunMessage) error {
	envelope := queuedRun{
		ID:         uuid.New().String(),
		Body:       msg,
		EnqueuedAt: time.Now(),
		VisibleAt:  time.Now(),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(q.msgKey(envelope.ID), data); err != nil {
			return err
		}
		return txn.Set(q.indexKey(envelope.VisibleAt, envelope.ID), []byte{})
	})
}

// Receive pulls the next visible message. The returned ack function removes
// the message; unacked messages become visible again after the timeout.
// Messages past the receive cap are dropped to avoid poison loops.
func (q *BadgerQueue) Receive(ctx context.Context) (*interfaces.RunMessage, func() error, error) {
	var envelope queuedRun
	var msgID string
	var oldIndexKey []byte

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", q.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			ts, id, err := q.parseIndexKey(key)
			if err != nil {
				continue
			}

			// Index keys sort by timestamp; a future entry means nothing
			// later is ready either.
			if ts.After(now) {
				break
			}

			msgItem, err := txn.Get(q.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean it up
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := msgItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &envelope)
			}); err != nil {
				return err
			}

			if envelope.ReceiveCount >= q.maxReceive {
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(q.msgKey(id)); err != nil {
					return err
				}
				continue
			}

			found = true
			msgID = id
			oldIndexKey = key
			break
		}

		if !found {
			return ErrNoMessage
		}

		envelope.ReceiveCount++
		envelope.VisibleAt = time.Now().Add(q.visibilityTimeout)

		newData, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		if err := txn.Set(q.msgKey(msgID), newData); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(q.indexKey(envelope.VisibleAt, msgID), []byte{})
	})

	if err != nil {
		return nil, nil, err
	}

	ack := func() error {
		return q.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(q.msgKey(msgID))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil // Already acked
				}
				return err
			}

			var current queuedRun
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}

			if err := txn.Delete(q.indexKey(current.VisibleAt, msgID)); err != nil {
				if err != badger.ErrKeyNotFound {
					return err
				}
			}
			return txn.Delete(q.msgKey(msgID))
		})
	}

	return &envelope.Body, ack, nil
}

// Extend pushes out the visibility timeout for an in-flight message
func (q *BadgerQueue) Extend(ctx context.Context, messageID string, duration time.Duration) error {
	return q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(q.msgKey(messageID))
		if err != nil {
			return err
		}

		var envelope queuedRun
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &envelope)
		}); err != nil {
			return err
		}

		oldVisibleAt := envelope.VisibleAt
		envelope.VisibleAt = time.Now().Add(duration)

		newData, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		if err := txn.Set(q.msgKey(messageID), newData); err != nil {
			return err
		}
		if err := txn.Delete(q.indexKey(oldVisibleAt, messageID)); err != nil {
			if err != badger.ErrKeyNotFound {
				return err
			}
		}
		return txn.Set(q.indexKey(envelope.VisibleAt, messageID), []byte{})
	})
}

// Close is a no-op; the DB handle is managed externally
func (q *BadgerQueue) Close() error {
	return nil
}

func (q *BadgerQueue) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", q.queueName, id))
}

func (q *BadgerQueue) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so lexicographic order matches numeric order
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", q.queueName, visibleAt.UnixNano(), id))
}

func (q *BadgerQueue) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := fmt.Sprintf("queue:%s:index:", q.queueName)
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid index key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 21 { // 20 digits + colon
		return time.Time{}, "", fmt.Errorf("invalid index key suffix")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), suffix[21:], nil
}
