package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/postlater/configs"
	"github.com/maheshrc27/postlater/internal/adapter"
	"github.com/maheshrc27/postlater/internal/models"
	"github.com/maheshrc27/postlater/internal/repository"
)

// memDB is an in-memory stand-in for the scheduling tables, with the same lease rules.
type memDB struct {
	mu       sync.Mutex
	nextID   int64
	posts    map[int64]*models.Post
	threads  map[int64]*models.Thread
	boosts   map[int64]*models.Boost
	media    map[int64]*models.MediaAttachment
	accounts map[int64]*models.Account
	history  []*models.AttemptHistory
}

func newMemDB() *memDB {
	return &memDB{
		posts:    make(map[int64]*models.Post),
		threads:  make(map[int64]*models.Thread),
		boosts:   make(map[int64]*models.Boost),
		media:    make(map[int64]*models.MediaAttachment),
		accounts: make(map[int64]*models.Account),
	}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

func claimState(s *models.SendableState, token string, until, now time.Time) error {
	if s.Leased(now) {
		return repository.ErrLeaseConflict
	}
	s.LockToken = &token
	s.LockedUntil = &until
	return nil
}

func holdsLease(s *models.SendableState, token string) error {
	if s.LockToken == nil || *s.LockToken != token {
		return repository.ErrLeaseConflict
	}
	return nil
}

func clearLease(s *models.SendableState) {
	s.LockToken = nil
	s.LockedUntil = nil
}

func copyPost(p *models.Post) *models.Post {
	cp := *p
	cp.Attachments = nil
	return &cp
}

type fakePostRepo struct{ db *memDB }

func (r fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	post.ID = r.db.id()
	if post.Status == "" {
		post.Status = models.StatusPending
	}
	r.db.posts[post.ID] = copyPost(post)
	return post.ID, nil
}

func (r fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.posts[id]
	if !ok {
		return nil, nil
	}
	return copyPost(p), nil
}

func (r fakePostRepo) ListByThreadID(ctx context.Context, threadID int64) ([]*models.Post, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Post
	for _, p := range r.db.posts {
		if p.ThreadID != nil && *p.ThreadID == threadID {
			out = append(out, copyPost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadOrdering < out[j].ThreadOrdering })
	return out, nil
}

// ListJobCandidates returns every row; the partition functions do the filtering.
func (r fakePostRepo) ListJobCandidates(ctx context.Context, now time.Time) ([]*models.Post, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Post
	for _, p := range r.db.posts {
		out = append(out, copyPost(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakePostRepo) Claim(ctx context.Context, id int64, token string, until, now time.Time) (*models.Post, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := claimState(&p.SendableState, token, until, now); err != nil {
		return nil, err
	}
	return copyPost(p), nil
}

func (r fakePostRepo) Release(ctx context.Context, id int64, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p := r.db.posts[id]
	if err := holdsLease(&p.SendableState, token); err != nil {
		return err
	}
	clearLease(&p.SendableState)
	return nil
}

func (r fakePostRepo) Save(ctx context.Context, post *models.Post, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := holdsLease(&r.db.posts[post.ID].SendableState, token); err != nil {
		return err
	}
	r.db.savePost(post)
	return nil
}

func (r fakePostRepo) ScheduleAutoBoost(ctx context.Context, post *models.Post, boost *models.Boost, token string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := holdsLease(&r.db.posts[post.ID].SendableState, token); err != nil {
		return 0, err
	}
	boost.ID = r.db.id()
	cp := *boost
	r.db.boosts[boost.ID] = &cp
	post.AutoBoostCompleted = true
	r.db.savePost(post)
	return boost.ID, nil
}

func (db *memDB) savePost(post *models.Post) {
	stored := copyPost(post)
	clearLease(&stored.SendableState)
	db.posts[post.ID] = stored
	for _, m := range post.Attachments {
		cp := *m
		db.media[m.ID] = &cp
	}
}

type fakeThreadRepo struct{ db *memDB }

func copyThread(t *models.Thread) *models.Thread {
	cp := *t
	return &cp
}

func (r fakeThreadRepo) Create(ctx context.Context, tx *sql.Tx, thread *models.Thread) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	thread.ID = r.db.id()
	if thread.Status == "" {
		thread.Status = models.StatusPending
	}
	if thread.SecondsBetweenPosts == 0 {
		thread.SecondsBetweenPosts = models.DefaultSecondsBetweenPosts
	}
	r.db.threads[thread.ID] = copyThread(thread)
	return thread.ID, nil
}

func (r fakeThreadRepo) GetByID(ctx context.Context, id int64) (*models.Thread, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.threads[id]
	if !ok {
		return nil, nil
	}
	return copyThread(t), nil
}

func (r fakeThreadRepo) ListJobCandidates(ctx context.Context, now time.Time) ([]*models.Thread, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Thread
	for _, t := range r.db.threads {
		out = append(out, copyThread(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeThreadRepo) Claim(ctx context.Context, id int64, token string, until, now time.Time) (*models.Thread, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.threads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := claimState(&t.SendableState, token, until, now); err != nil {
		return nil, err
	}
	return copyThread(t), nil
}

func (r fakeThreadRepo) Release(ctx context.Context, id int64, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t := r.db.threads[id]
	if err := holdsLease(&t.SendableState, token); err != nil {
		return err
	}
	clearLease(&t.SendableState)
	return nil
}

func (r fakeThreadRepo) Save(ctx context.Context, thread *models.Thread, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := holdsLease(&r.db.threads[thread.ID].SendableState, token); err != nil {
		return err
	}
	stored := copyThread(thread)
	clearLease(&stored.SendableState)
	r.db.threads[thread.ID] = stored
	return nil
}

func (r fakeThreadRepo) SaveProgress(ctx context.Context, thread *models.Thread, post *models.Post, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := holdsLease(&r.db.threads[thread.ID].SendableState, token); err != nil {
		return err
	}
	stored := copyThread(thread)
	clearLease(&stored.SendableState)
	r.db.threads[thread.ID] = stored
	r.db.savePost(post)
	return nil
}

type fakeBoostRepo struct{ db *memDB }

func copyBoost(b *models.Boost) *models.Boost {
	cp := *b
	return &cp
}

func (r fakeBoostRepo) Create(ctx context.Context, tx *sql.Tx, boost *models.Boost) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	boost.ID = r.db.id()
	if boost.Status == "" {
		boost.Status = models.StatusPending
	}
	r.db.boosts[boost.ID] = copyBoost(boost)
	return boost.ID, nil
}

func (r fakeBoostRepo) GetByID(ctx context.Context, id int64) (*models.Boost, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.boosts[id]
	if !ok {
		return nil, nil
	}
	return copyBoost(b), nil
}

func (r fakeBoostRepo) ListJobCandidates(ctx context.Context, now time.Time) ([]*models.Boost, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.Boost
	for _, b := range r.db.boosts {
		out = append(out, copyBoost(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeBoostRepo) Claim(ctx context.Context, id int64, token string, until, now time.Time) (*models.Boost, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.boosts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := claimState(&b.SendableState, token, until, now); err != nil {
		return nil, err
	}
	return copyBoost(b), nil
}

func (r fakeBoostRepo) Release(ctx context.Context, id int64, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b := r.db.boosts[id]
	if err := holdsLease(&b.SendableState, token); err != nil {
		return err
	}
	clearLease(&b.SendableState)
	return nil
}

func (r fakeBoostRepo) Save(ctx context.Context, boost *models.Boost, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := holdsLease(&r.db.boosts[boost.ID].SendableState, token); err != nil {
		return err
	}
	stored := copyBoost(boost)
	clearLease(&stored.SendableState)
	r.db.boosts[boost.ID] = stored
	return nil
}

type fakeAccountRepo struct{ db *memDB }

func (r fakeAccountRepo) Create(ctx context.Context, tx *sql.Tx, a *models.Account) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a.ID = r.db.id()
	cp := *a
	r.db.accounts[a.ID] = &cp
	return a.ID, nil
}

func (r fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r fakeAccountRepo) SetCredential(ctx context.Context, id int64, credential string) error {
	return errors.New("not used")
}

func (r fakeAccountRepo) SetUsername(ctx context.Context, id int64, username string) error {
	return errors.New("not used")
}

func (r fakeAccountRepo) Remove(ctx context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.accounts[id].AccountStatus = models.AccountStatusTrashed
	return nil
}

type fakeMediaRepo struct{ db *memDB }

func (r fakeMediaRepo) Create(ctx context.Context, tx *sql.Tx, m *models.MediaAttachment) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m.ID = r.db.id()
	if m.UploadStatus == "" {
		m.UploadStatus = models.StatusPending
	}
	cp := *m
	r.db.media[m.ID] = &cp
	return m.ID, nil
}

func (r fakeMediaRepo) GetByID(ctx context.Context, id int64) (*models.MediaAttachment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.media[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r fakeMediaRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAttachment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.MediaAttachment
	for _, m := range r.db.media {
		if m.PostID != nil && *m.PostID == postID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeMediaRepo) CleanOrphans(ctx context.Context, createdBefore time.Time) ([]string, error) {
	return nil, nil
}

type fakeHistoryRepo struct{ db *memDB }

func (r fakeHistoryRepo) Create(ctx context.Context, ah *models.AttemptHistory) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ah.ID = r.db.id()
	r.db.history = append(r.db.history, ah)
	return ah.ID, nil
}

func (r fakeHistoryRepo) ListByItem(ctx context.Context, kind models.ItemKind, itemID int64) ([]*models.AttemptHistory, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*models.AttemptHistory
	for _, h := range r.db.history {
		if h.ItemKind == kind && h.ItemID == itemID {
			out = append(out, h)
		}
	}
	return out, nil
}

// fakeAdapter records every call. Errors queued in sendErrs and uploadErrs are
// returned by successive calls; nil entries succeed.
type fakeAdapter struct {
	mu         sync.Mutex
	ready      bool
	queue      bool
	sendErrs   []error
	uploadErrs []error
	boostErrs  []error
	requests   []adapter.PostRequest
	uploads    []adapter.MediaUpload
	boosted    []string
	sent       int
	onSend     func()
}

func (a *fakeAdapter) IsReadyToPost() bool { return a.ready }

func (a *fakeAdapter) Username(ctx context.Context) (string, error) { return "poster", nil }

func (a *fakeAdapter) AvatarURL(ctx context.Context) (string, error) {
	return "https://social.example/avatar.png", nil
}

func (a *fakeAdapter) ProfileURL(ctx context.Context) (string, error) {
	return "https://social.example/@poster", nil
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (a *fakeAdapter) UploadMedia(ctx context.Context, media adapter.MediaUpload) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploads = append(a.uploads, media)
	if err := pop(&a.uploadErrs); err != nil {
		return "", err
	}
	return fmt.Sprintf("media-%d", len(a.uploads)), nil
}

func (a *fakeAdapter) SendPost(ctx context.Context, req adapter.PostRequest) (adapter.PostResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.onSend != nil {
		a.onSend()
	}
	if err := pop(&a.sendErrs); err != nil {
		return adapter.PostResult{}, err
	}
	a.sent++
	id := fmt.Sprintf("status-%d", a.sent)
	if a.queue {
		return adapter.PostResult{RemoteID: "queued-" + id}, nil
	}
	return adapter.PostResult{RemoteID: id, RemoteURL: "https://social.example/@poster/" + id}, nil
}

func (a *fakeAdapter) SendBoost(ctx context.Context, remoteURL string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.boosted = append(a.boosted, remoteURL)
	if err := pop(&a.boostErrs); err != nil {
		return "", err
	}
	return fmt.Sprintf("boost-%d", len(a.boosted)), nil
}

func (a *fakeAdapter) SearchUsernames(ctx context.Context, fragment string) ([]string, error) {
	return []string{fragment + "1", fragment + "2"}, nil
}

type checkingAdapter struct {
	*fakeAdapter
	published bool
}

func (a *checkingAdapter) CheckQueued(ctx context.Context, remoteQueueID string) (adapter.PostResult, bool, error) {
	if !a.published {
		return adapter.PostResult{}, false, nil
	}
	return adapter.PostResult{RemoteID: "status-from-" + remoteQueueID, RemoteURL: "https://social.example/@poster/1"}, true, nil
}

type fakeResolver struct {
	adapters map[int64]adapter.Adapter
}

func (r *fakeResolver) Resolve(account *models.Account) (adapter.Adapter, error) {
	a, ok := r.adapters[account.ID]
	if !ok {
		return nil, adapter.ErrUnsupportedAccountType
	}
	return a, nil
}

type fakeMediaStore struct {
	objects map[string][]byte
}

func (s *fakeMediaStore) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	s.objects[key] = data
	return nil
}

func (s *fakeMediaStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (s *fakeMediaStore) Delete(ctx context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// harness wires a dispatcher and a sequencer to one in-memory database and a
// controllable clock.
type harness struct {
	db       *memDB
	clock    time.Time
	ad       *fakeAdapter
	account  *models.Account
	resolver *fakeResolver
	store    *fakeMediaStore

	posts   fakePostRepo
	threads fakeThreadRepo
	boosts  fakeBoostRepo
	media   fakeMediaRepo
	history fakeHistoryRepo

	dispatcher *dispatcher
	sequencer  *threadSequencer
}

func testConfig() config.Config {
	return config.Config{
		MaxPostFailures:      20,
		PostFailureRetryWait: 4800 * time.Second,
		DefaultJobLock:       4800 * time.Second,
		AdapterTimeout:       time.Minute,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, testConfig())
}

func newHarnessWithConfig(t *testing.T, c config.Config) *harness {
	t.Helper()

	db := newMemDB()
	h := &harness{
		db:       db,
		clock:    t0,
		ad:       &fakeAdapter{ready: true},
		resolver: &fakeResolver{adapters: make(map[int64]adapter.Adapter)},
		store:    &fakeMediaStore{objects: make(map[string][]byte)},
		posts:    fakePostRepo{db},
		threads:  fakeThreadRepo{db},
		boosts:   fakeBoostRepo{db},
		media:    fakeMediaRepo{db},
		history:  fakeHistoryRepo{db},
	}

	h.account = &models.Account{UserID: 7, AccountType: models.AccountTypeMastodon, AccountStatus: models.AccountStatusActive}
	if _, err := (fakeAccountRepo{db}).Create(context.Background(), nil, h.account); err != nil {
		t.Fatal(err)
	}
	h.resolver.adapters[h.account.ID] = h.ad

	tokens := 0
	newToken := func() (string, error) {
		tokens++
		return fmt.Sprintf("lease-%d", tokens), nil
	}
	now := func() time.Time { return h.clock }

	h.dispatcher = NewDispatcher(c, h.posts, h.threads, h.boosts, fakeAccountRepo{db}, h.media, h.history, h.resolver, h.store).(*dispatcher)
	h.dispatcher.now = now
	h.dispatcher.newToken = newToken

	h.sequencer = NewThreadSequencer(c, h.threads, h.posts, fakeAccountRepo{db}, h.media, h.history, h.resolver, h.store).(*threadSequencer)
	h.sequencer.now = now
	h.sequencer.newToken = newToken
	return h
}

func (h *harness) addPost(t *testing.T, p *models.Post) *models.Post {
	t.Helper()
	p.UserID = h.account.UserID
	p.AccountID = h.account.ID
	if p.SendAt.IsZero() {
		p.SendAt = h.clock
	}
	if _, err := h.posts.Create(context.Background(), nil, p); err != nil {
		t.Fatal(err)
	}
	return p
}

func (h *harness) addThread(t *testing.T, n int) *models.Thread {
	t.Helper()
	thread := &models.Thread{UserID: h.account.UserID, AccountID: h.account.ID}
	thread.SendAt = h.clock
	if _, err := h.threads.Create(context.Background(), nil, thread); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		threadID := thread.ID
		h.addPost(t, &models.Post{ThreadID: &threadID, ThreadOrdering: i, Content: fmt.Sprintf("part %d", i+1)})
	}
	return thread
}

func (h *harness) addMedia(t *testing.T, postID int64, key string, data []byte, mime string) *models.MediaAttachment {
	t.Helper()
	pid := postID
	m := &models.MediaAttachment{UserID: h.account.UserID, PostID: &pid, ObjectKey: key, MimeType: mime}
	if _, err := h.media.Create(context.Background(), nil, m); err != nil {
		t.Fatal(err)
	}
	h.store.objects[key] = data
	return m
}

func (h *harness) post(t *testing.T, id int64) *models.Post {
	t.Helper()
	p, err := h.posts.GetByID(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("post %d: %v", id, err)
	}
	return p
}

func (h *harness) thread(t *testing.T, id int64) *models.Thread {
	t.Helper()
	th, err := h.threads.GetByID(context.Background(), id)
	if err != nil || th == nil {
		t.Fatalf("thread %d: %v", id, err)
	}
	return th
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}
