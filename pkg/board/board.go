package board

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/kv"
	"github.com/agentcoord/core/pkg/types"
	"github.com/rs/zerolog"
)

// ErrUnknownThread is returned when a thread id has no record. Board
// threads sit in the supporting layer spec §3 leaves to implementers,
// so this isn't part of pkg/coreerr's fixed core taxonomy.
var ErrUnknownThread = errors.New("board: unknown thread")

const threadIndexKey = "board:threads:index"

func threadKey(id string) string       { return "board:thread:" + id }
func pubsubChannel(name string) string { return "channel:" + name }

// Board manages threaded conversations over a kv.Backend.
type Board struct {
	backend kv.Backend
	logger  zerolog.Logger
}

// New creates a Board over backend.
func New(backend kv.Backend) *Board {
	return &Board{
		backend: backend,
		logger:  corelog.WithComponent("board"),
	}
}

// CreateThread opens a new thread in channel.
func (b *Board) CreateThread(ctx context.Context, channel, title, createdBy string) (*types.BoardThread, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}

	thread := &types.BoardThread{
		ID:        id,
		Channel:   channel,
		Title:     title,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
		Posts:     []types.Post{},
	}
	if err := b.put(ctx, thread); err != nil {
		return nil, err
	}
	if err := b.backend.SAdd(ctx, threadIndexKey, id); err != nil {
		return nil, err
	}
	return thread.Clone(), nil
}

// Post appends an entry to threadID and, if the backend supports
// pub/sub fan-out, publishes it on channel:{thread.Channel} for live
// listeners (spec §4.G: "Real-time fan-out optionally uses pub/sub").
func (b *Board) Post(ctx context.Context, threadID, author, body string, priority types.MessagePriority) (*types.BoardThread, error) {
	thread, err := b.get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, ErrUnknownThread
	}

	post := types.Post{
		Author:    author,
		Timestamp: time.Now().UTC(),
		Body:      body,
		Priority:  priority,
	}
	thread.Posts = append(thread.Posts, post)
	if err := b.put(ctx, thread); err != nil {
		return nil, err
	}

	if data, err := json.Marshal(post); err == nil {
		_ = b.backend.Publish(ctx, pubsubChannel(thread.Channel), data)
	}
	return thread.Clone(), nil
}

// Pin sets a thread's pinned flag.
func (b *Board) Pin(ctx context.Context, threadID string, pinned bool) error {
	thread, err := b.get(ctx, threadID)
	if err != nil {
		return err
	}
	if thread == nil {
		return ErrUnknownThread
	}
	thread.Pinned = pinned
	return b.put(ctx, thread)
}

// GetThread returns one thread by id.
func (b *Board) GetThread(ctx context.Context, threadID string) (*types.BoardThread, error) {
	thread, err := b.get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, ErrUnknownThread
	}
	return thread.Clone(), nil
}

// ListThreads returns every known thread, optionally filtered to one
// channel (empty string means all channels).
func (b *Board) ListThreads(ctx context.Context, channel string) ([]*types.BoardThread, error) {
	ids, err := b.backend.SMembers(ctx, threadIndexKey)
	if err != nil {
		return nil, err
	}

	out := make([]*types.BoardThread, 0, len(ids))
	for _, id := range ids {
		thread, err := b.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if thread == nil {
			continue
		}
		if channel != "" && thread.Channel != channel {
			continue
		}
		out = append(out, thread.Clone())
	}
	return out, nil
}

func (b *Board) put(ctx context.Context, thread *types.BoardThread) error {
	data, err := thread.MarshalRecord()
	if err != nil {
		return err
	}
	return b.backend.Set(ctx, threadKey(thread.ID), data)
}

func (b *Board) get(ctx context.Context, id string) (*types.BoardThread, error) {
	data, ok, err := b.backend.Get(ctx, threadKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return types.UnmarshalBoardThread(data)
}

func newID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
