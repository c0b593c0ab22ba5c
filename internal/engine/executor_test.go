package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twillot/twillot/internal/notify"
	"github.com/twillot/twillot/internal/store"
	"github.com/twillot/twillot/internal/workflow"
)

type fakeAPI struct {
	conversation    []string
	conversationErr error
	item            *store.Record
	itemErr         error
	replyErr        error

	replies []string // "target|text"
	calls   []string
}

func (f *fakeAPI) Conversation(ctx context.Context, remoteID string) ([]string, error) {
	f.calls = append(f.calls, "conversation:"+remoteID)
	return f.conversation, f.conversationErr
}

func (f *fakeAPI) ItemDetail(ctx context.Context, remoteID string) (*store.Record, error) {
	f.calls = append(f.calls, "detail:"+remoteID)
	return f.item, f.itemErr
}

func (f *fakeAPI) CreateReply(ctx context.Context, targetID, text string) (string, error) {
	f.calls = append(f.calls, "reply:"+targetID)
	f.replies = append(f.replies, targetID+"|"+text)
	return "created-1", f.replyErr
}

type fakeDownloader struct {
	urls []string
	err  error
}

func (f *fakeDownloader) Download(ctx context.Context, remoteID, url string) error {
	f.urls = append(f.urls, url)
	return f.err
}

func newTestExecutor(t *testing.T, api *fakeAPI, dl Downloader) (*Executor, *TaskQueue, *store.Store, *notify.Bus) {
	t.Helper()

	s := createTestStore(t)
	bus := notify.NewBus()
	queue := NewTaskQueue(s, "u1", nil)
	return NewExecutor(queue, s, "u1", api, dl, bus), queue, s, bus
}

func TestRunAll_UnrollThreadMergesConversation(t *testing.T) {
	api := &fakeAPI{conversation: []string{"part two", "part three"}}
	ex, queue, s, _ := newTestExecutor(t, api, nil)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []store.Record{{OwnerID: "u1", RemoteID: "42", FullText: "part one"}}))
	require.NoError(t, queue.Enqueue(ctx, workflow.Task{ID: "t1", Name: workflow.ActionUnrollThread, TargetID: "42"}))

	require.NoError(t, ex.RunAll(ctx))

	rec, err := s.FindByID(ctx, "u1", "42")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"part two", "part three"}, rec.Conversations)

	tasks, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRunAll_UnrollThreadAbsentRecordStillDequeues(t *testing.T) {
	api := &fakeAPI{}
	ex, queue, _, _ := newTestExecutor(t, api, nil)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, workflow.Task{ID: "t1", Name: workflow.ActionUnrollThread, TargetID: "missing"}))
	require.NoError(t, ex.RunAll(ctx))

	assert.Empty(t, api.calls, "no remote fetch for an unstored record")
	tasks, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRunAll_EmptyConversationIsNoop(t *testing.T) {
	api := &fakeAPI{conversation: nil}
	ex, queue, s, _ := newTestExecutor(t, api, nil)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []store.Record{{OwnerID: "u1", RemoteID: "42", FullText: "lone post"}}))
	require.NoError(t, queue.Enqueue(ctx, workflow.Task{ID: "t1", Name: workflow.ActionUnrollThread, TargetID: "42"}))
	require.NoError(t, ex.RunAll(ctx))

	rec, err := s.FindByID(ctx, "u1", "42")
	require.NoError(t, err)
	assert.Empty(t, rec.Conversations)
}

func TestRunAll_FailedTaskIsDequeuedNotRetried(t *testing.T) {
	api := &fakeAPI{conversationErr: errors.New("remote down")}
	ex, queue, s, _ := newTestExecutor(t, api, nil)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []store.Record{{OwnerID: "u1", RemoteID: "42"}}))
	require.NoError(t, queue.Enqueue(ctx, workflow.Task{ID: "t1", Name: workflow.ActionUnrollThread, TargetID: "42"}))

	require.NoError(t, ex.RunAll(ctx))

	tasks, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks, "terminal failure still removes the task")
}

func TestRunAll_DeleteBookmarkAdjustsCounters(t *testing.T) {
	api := &fakeAPI{}
	ex, queue, s, bus := newTestExecutor(t, api, nil)
	sub := bus.Subscribe()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []store.Record{
		{OwnerID: "u1", RemoteID: "1", Folder: "reading"},
		{OwnerID: "u1", RemoteID: "2", Folder: "reading"},
	}))
	require.NoError(t, queue.Enqueue(ctx, workflow.Task{ID: "t1", Name: workflow.ActionDeleteBookmark, TargetID: "1"}))

	require.NoError(t, ex.RunAll(ctx))

	rec, err := s.FindByID(ctx, "u1", "1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// The executor publishes a record change followed by the counter
	// adjustment.
	first := <-sub
	assert.Equal(t, notify.KindRecordsChanged, first.Kind)
	counts := <-sub
	require.Equal(t, notify.KindCountsChanged, counts.Kind)
	assert.Equal(t, 1, counts.TotalCount)
	assert.Equal(t, map[string]int{"reading": 1}, counts.FolderCounts)
}

func TestRunAll_DeleteBookmarkAbsentIsNoop(t *testing.T) {
	api := &fakeAPI{}
	ex, queue, _, _ := newTestExecutor(t, api, nil)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, workflow.Task{ID: "t1", Name: workflow.ActionDeleteBookmark, TargetID: "missing"}))
	require.NoError(t, ex.RunAll(ctx))

	tasks, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRunAll_AutoCommentPostsConfiguredText(t *testing.T) {
	api := &fakeAPI{}
	ex, queue, _, _ := newTestExecutor(t, api, nil)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, workflow.Task{
		ID: "t1", Name: workflow.ActionAutoComment, TargetID: "42", Inputs: []string{"great thread"},
	}))
	require.NoError(t, ex.RunAll(ctx))

	assert.Equal(t, []string{"42|great thread"}, api.replies)
}

func TestRunAll_AutoCommentWithoutTextSkips(t *testing.T) {
	api := &fakeAPI{}
	ex, queue, _, _ := newTestExecutor(t, api, nil)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, workflow.Task{ID: "t1", Name: workflow.ActionAutoComment, TargetID: "42"}))
	require.NoError(t, ex.RunAll(ctx))

	assert.Empty(t, api.replies, "misconfigured action posts nothing")
	tasks, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRunAll_DownloadMediaPicksHighestQualityVariant(t *testing.T) {
	api := &fakeAPI{item: &store.Record{
		OwnerID:  "u1",
		RemoteID: "42",
		Media: []store.MediaItem{{
			Type: "video",
			Variants: []store.MediaVariant{
				{URL: "low.mp4", Bitrate: 100},
				{URL: "high.mp4", Bitrate: 900},
			},
		}},
	}}
	dl := &fakeDownloader{}
	ex, queue, _, _ := newTestExecutor(t, api, dl)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, workflow.Task{ID: "t1", Name: workflow.ActionDownloadMedia, TargetID: "42"}))
	require.NoError(t, ex.RunAll(ctx))

	assert.Equal(t, []string{"high.mp4"}, dl.urls)
}

func TestRunAll_DownloadMediaWithoutMediaIsNoop(t *testing.T) {
	api := &fakeAPI{item: &store.Record{OwnerID: "u1", RemoteID: "42"}}
	dl := &fakeDownloader{}
	ex, queue, _, _ := newTestExecutor(t, api, dl)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, workflow.Task{ID: "t1", Name: workflow.ActionDownloadMedia, TargetID: "42"}))
	require.NoError(t, ex.RunAll(ctx))

	assert.Empty(t, dl.urls)
}

func TestRunAll_ProcessesTasksInInsertionOrder(t *testing.T) {
	api := &fakeAPI{item: &store.Record{OwnerID: "u1", RemoteID: "x"}}
	ex, queue, s, _ := newTestExecutor(t, api, &fakeDownloader{})
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []store.Record{{OwnerID: "u1", RemoteID: "1"}}))
	require.NoError(t, queue.Enqueue(ctx, workflow.Task{ID: "t1", Name: workflow.ActionUnrollThread, TargetID: "1"}))
	require.NoError(t, queue.Enqueue(ctx, workflow.Task{ID: "t2", Name: workflow.ActionDownloadMedia, TargetID: "2"}))

	require.NoError(t, ex.RunAll(ctx))

	assert.Equal(t, []string{"conversation:1", "detail:2"}, api.calls)
}
