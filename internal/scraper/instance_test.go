package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"newsriver/internal/domain/entity"
	"newsriver/internal/infra/feed"
)

const (
	testSourceID = int64(7)
	testFeedURL  = "https://example.com/rss"
)

// callLog records calls across all stubs so tests can assert ordering,
// in particular that the successor tick is armed before any fallible work.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func indexOf(calls []string, name string) int {
	for i, c := range calls {
		if c == name {
			return i
		}
	}
	return -1
}

type stubStates struct {
	log *callLog

	mu        sync.Mutex
	states    map[int64]*entity.ScraperState
	getErr    error
	putErr    error
	setErr    error
	nextTicks map[int64][]time.Time
	restoreAt map[int64]time.Time
	nextErrs  map[int64]error
	deleted   map[int64]bool
}

func newStubStates(log *callLog) *stubStates {
	return &stubStates{
		log:       log,
		states:    make(map[int64]*entity.ScraperState),
		nextTicks: make(map[int64][]time.Time),
		restoreAt: make(map[int64]time.Time),
		nextErrs:  make(map[int64]error),
		deleted:   make(map[int64]bool),
	}
}

func (s *stubStates) Get(_ context.Context, sourceID int64) (*entity.ScraperState, error) {
	s.log.add("states.Get")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	st, ok := s.states[sourceID]
	if !ok {
		return nil, entity.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *stubStates) Put(_ context.Context, state *entity.ScraperState) error {
	s.log.add("states.Put")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	cp := *state
	s.states[state.SourceID] = &cp
	return nil
}

func (s *stubStates) SetNextTick(_ context.Context, sourceID int64, at time.Time) error {
	s.log.add("states.SetNextTick")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.nextTicks[sourceID] = append(s.nextTicks[sourceID], at)
	return nil
}

func (s *stubStates) NextTick(_ context.Context, sourceID int64) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.nextErrs[sourceID]; ok {
		return time.Time{}, err
	}
	return s.restoreAt[sourceID], nil
}

func (s *stubStates) Delete(_ context.Context, sourceID int64) error {
	s.log.add("states.Delete")
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sourceID)
	s.deleted[sourceID] = true
	return nil
}

func (s *stubStates) stored(sourceID int64) *entity.ScraperState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[sourceID]
	if !ok {
		return nil
	}
	cp := *st
	return &cp
}

func (s *stubStates) armed(sourceID int64) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.nextTicks[sourceID]...)
}

func (s *stubStates) wasDeleted(sourceID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted[sourceID]
}

type stubSources struct {
	log *callLog

	mu          sync.Mutex
	rows        map[int64]*entity.Source
	getErr      error
	listInitErr error
	setInitErr  error
	updateErr   error
	initialized map[int64]*time.Time
	lastChecked map[int64]time.Time
}

func newStubSources(log *callLog) *stubSources {
	return &stubSources{
		log:         log,
		rows:        make(map[int64]*entity.Source),
		initialized: make(map[int64]*time.Time),
		lastChecked: make(map[int64]time.Time),
	}
}

func (s *stubSources) Get(_ context.Context, id int64) (*entity.Source, error) {
	s.log.add("sources.Get")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	src, ok := s.rows[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	cp := *src
	return &cp, nil
}

func (s *stubSources) GetByURL(_ context.Context, url string) (*entity.Source, error) {
	s.log.add("sources.GetByURL")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.rows {
		if src.URL == url {
			cp := *src
			return &cp, nil
		}
	}
	return nil, entity.ErrNotFound
}

func (s *stubSources) List(_ context.Context) ([]*entity.Source, error) {
	return nil, nil
}

func (s *stubSources) ListInitialized(_ context.Context) ([]*entity.Source, error) {
	s.log.add("sources.ListInitialized")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listInitErr != nil {
		return nil, s.listInitErr
	}
	var out []*entity.Source
	for _, src := range s.rows {
		if src.InitializedAt != nil {
			cp := *src
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *stubSources) Upsert(_ context.Context, src *entity.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *src
	s.rows[src.ID] = &cp
	return nil
}

func (s *stubSources) SetInitialized(_ context.Context, id int64, at *time.Time) error {
	s.log.add("sources.SetInitialized")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setInitErr != nil {
		return s.setInitErr
	}
	s.initialized[id] = at
	if row, ok := s.rows[id]; ok {
		row.InitializedAt = at
	}
	return nil
}

func (s *stubSources) UpdateLastChecked(_ context.Context, id int64, t time.Time) error {
	s.log.add("sources.UpdateLastChecked")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.lastChecked[id] = t
	return nil
}

func (s *stubSources) initializedAt(id int64) (*time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.initialized[id]
	return at, ok
}

func (s *stubSources) lastCheckedAt(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.lastChecked[id]
	return at, ok
}

type stubArticles struct {
	log *callLog

	mu        sync.Mutex
	inserted  [][]*entity.Article
	returnIDs []int64
	insertErr error
}

func (a *stubArticles) InsertIgnoreDuplicates(_ context.Context, articles []*entity.Article) ([]int64, error) {
	a.log.add("articles.InsertIgnoreDuplicates")
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.insertErr != nil {
		return nil, a.insertErr
	}
	batch := make([]*entity.Article, 0, len(articles))
	for _, art := range articles {
		cp := *art
		batch = append(batch, &cp)
	}
	a.inserted = append(a.inserted, batch)
	return append([]int64(nil), a.returnIDs...), nil
}

func (a *stubArticles) insertCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inserted)
}

// The remaining methods exist only to satisfy the interface.
func (a *stubArticles) Get(_ context.Context, _ int64) (*entity.Article, error) {
	return nil, nil
}
func (a *stubArticles) ListProcessable(_ context.Context, _ []int64, _ time.Time) ([]*entity.Article, error) {
	return nil, nil
}
func (a *stubArticles) ListStalled(_ context.Context, _, _ time.Time, _ int) ([]int64, error) {
	return nil, nil
}
func (a *stubArticles) MarkContentFetched(_ context.Context, _ int64, _ bool, _ *time.Time) error {
	return nil
}
func (a *stubArticles) MarkFailed(_ context.Context, _ int64, _ entity.ArticleStatus, _ string, _ time.Time) error {
	return nil
}
func (a *stubArticles) CommitProcessed(_ context.Context, _ *entity.Article) error {
	return nil
}

type stubPublisher struct {
	log *callLog

	mu        sync.Mutex
	published [][]int64
	err       error
}

func (p *stubPublisher) PublishArticleIDs(_ context.Context, ids []int64) ([]string, error) {
	p.log.add("publisher.PublishArticleIDs")
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.published = append(p.published, append([]int64(nil), ids...))
	msgs := make([]string, len(ids))
	for i := range msgs {
		msgs[i] = fmt.Sprintf("msg-%d", i)
	}
	return msgs, nil
}

func (p *stubPublisher) publishes() [][]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]int64, 0, len(p.published))
	for _, ids := range p.published {
		out = append(out, append([]int64(nil), ids...))
	}
	return out
}

type stubFetcher struct {
	log *callLog

	mu       sync.Mutex
	body     []byte
	err      error
	failures int // remaining calls that return err
	calls    int
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.log.add("fetcher.Fetch")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return f.body, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubParser struct {
	log *callLog

	mu      sync.Mutex
	entries []feed.Entry
	err     error
	calls   int
}

func (p *stubParser) Parse(_ []byte) ([]feed.Entry, error) {
	p.log.add("parser.Parse")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return append([]feed.Entry(nil), p.entries...), nil
}

func (p *stubParser) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// recordingSleeper returns instantly so retry backoff costs the tests no
// wall time, while keeping the reasons for assertion.
type recordingSleeper struct {
	mu      sync.Mutex
	reasons []string
}

func (s *recordingSleeper) Sleep(_ context.Context, reason string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
	return nil
}

func (s *recordingSleeper) count(reason string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.reasons {
		if r == reason {
			n++
		}
	}
	return n
}

// tickEnv wires one instance to a full set of stubs, pre-seeded with a
// healthy state blob, its source row, and a one-entry feed.
type tickEnv struct {
	log       *callLog
	states    *stubStates
	sources   *stubSources
	articles  *stubArticles
	publisher *stubPublisher
	fetcher   *stubFetcher
	parser    *stubParser
	sleeper   *recordingSleeper
	inst      *Instance
}

func newTickEnv() *tickEnv {
	log := &callLog{}
	env := &tickEnv{
		log:       log,
		states:    newStubStates(log),
		sources:   newStubSources(log),
		articles:  &stubArticles{log: log, returnIDs: []int64{101}},
		publisher: &stubPublisher{log: log},
		fetcher:   &stubFetcher{log: log, body: []byte("<rss/>")},
		parser:    &stubParser{log: log},
		sleeper:   &recordingSleeper{},
	}
	env.states.states[testSourceID] = &entity.ScraperState{
		SourceID:            testSourceID,
		URL:                 testFeedURL,
		ScrapeFrequencyTier: entity.TierStandard,
	}
	env.sources.rows[testSourceID] = &entity.Source{
		ID:                  testSourceID,
		Name:                "Example News",
		URL:                 testFeedURL,
		Category:            "news",
		ScrapeFrequencyTier: entity.TierStandard,
	}
	env.parser.entries = []feed.Entry{
		{Title: "Hello", Link: "https://example.com/a"},
	}
	env.inst = NewInstance(testSourceID, testFeedURL, env.deps())
	return env
}

func (e *tickEnv) deps() Deps {
	return Deps{
		States:    e.states,
		Sources:   e.sources,
		Articles:  e.articles,
		Publisher: e.publisher,
		Fetcher:   e.fetcher,
		Parser:    e.parser,
		Sleeper:   e.sleeper,
	}
}

func TestTick_HappyPath(t *testing.T) {
	env := newTickEnv()
	pub := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	env.parser.entries = []feed.Entry{
		{Title: "Hello", Link: "https://example.com/a", PublishedAt: &pub},
		{Title: "World", Link: "https://example.com/b"},
	}
	env.articles.returnIDs = []int64{101, 102}

	env.inst.tick(context.Background())

	if env.articles.insertCount() != 1 {
		t.Fatalf("insert batches = %d, want 1", env.articles.insertCount())
	}
	rows := env.articles.inserted[0]
	if len(rows) != 2 {
		t.Fatalf("inserted rows = %d, want 2", len(rows))
	}
	if rows[0].SourceID != testSourceID || rows[0].Title != "Hello" || rows[0].URL != "https://example.com/a" {
		t.Errorf("row 0 = %+v, want the first feed entry for source %d", rows[0], testSourceID)
	}
	if rows[0].PublishDate == nil || !rows[0].PublishDate.Equal(pub) {
		t.Errorf("row 0 publish date = %v, want %v", rows[0].PublishDate, pub)
	}
	if rows[1].PublishDate != nil {
		t.Errorf("row 1 publish date = %v, want nil when the feed gave none", rows[1].PublishDate)
	}

	pubs := env.publisher.publishes()
	if len(pubs) != 1 {
		t.Fatalf("publishes = %d, want 1", len(pubs))
	}
	if len(pubs[0]) != 2 || pubs[0][0] != 101 || pubs[0][1] != 102 {
		t.Errorf("published ids = %v, want [101 102]", pubs[0])
	}

	st := env.states.stored(testSourceID)
	if st == nil || st.LastChecked == nil {
		t.Fatal("state lastChecked not advanced after a successful tick")
	}
	if _, ok := env.sources.lastCheckedAt(testSourceID); !ok {
		t.Error("source lastChecked mirror not written")
	}

	arms := env.states.armed(testSourceID)
	if len(arms) != 1 {
		t.Fatalf("SetNextTick calls = %d, want 1", len(arms))
	}
	if until := time.Until(arms[0]); until < 3*time.Hour || until > 5*time.Hour {
		t.Errorf("next tick in %v, want about the 4h standard interval", until)
	}
}

func TestTick_ArmsSuccessorBeforeFetching(t *testing.T) {
	env := newTickEnv()

	env.inst.tick(context.Background())

	calls := env.log.snapshot()
	arm := indexOf(calls, "states.SetNextTick")
	fetch := indexOf(calls, "fetcher.Fetch")
	if arm == -1 || fetch == -1 {
		t.Fatalf("calls = %v, want both SetNextTick and Fetch present", calls)
	}
	if arm > fetch {
		t.Errorf("calls = %v, want the successor tick armed before the fetch", calls)
	}
}

func TestTick_DuplicateFeedStillAdvancesLastChecked(t *testing.T) {
	env := newTickEnv()
	env.articles.returnIDs = nil // every URL already present

	env.inst.tick(context.Background())

	if got := env.publisher.publishes(); len(got) != 0 {
		t.Errorf("publishes = %d, want 0 for a duplicate-only feed", len(got))
	}
	st := env.states.stored(testSourceID)
	if st == nil || st.LastChecked == nil {
		t.Error("lastChecked must advance even when nothing was inserted")
	}
}

func TestTick_FetchFailureExhaustsRetries(t *testing.T) {
	env := newTickEnv()
	env.fetcher.failures = 3
	env.fetcher.err = entity.NewPipelineError(entity.KindFetchError, "FetchFeed", errors.New("upstream 503"))

	env.inst.tick(context.Background())

	if env.fetcher.callCount() != 3 {
		t.Errorf("fetch attempts = %d, want 3", env.fetcher.callCount())
	}
	if got := env.sleeper.count("retry-backoff:fetch-feed"); got != 2 {
		t.Errorf("backoff sleeps = %d, want 2", got)
	}
	if env.parser.callCount() != 0 {
		t.Errorf("parse attempts = %d, want 0 after the fetch gave up", env.parser.callCount())
	}
	st := env.states.stored(testSourceID)
	if st == nil || st.LastChecked != nil {
		t.Error("lastChecked must not advance on a failed tick")
	}
	if arms := env.states.armed(testSourceID); len(arms) != 1 {
		t.Errorf("SetNextTick calls = %d, want the successor tick still armed", len(arms))
	}
}

func TestTick_FetchRecoversWithinBudget(t *testing.T) {
	env := newTickEnv()
	env.fetcher.failures = 2
	env.fetcher.err = entity.NewPipelineError(entity.KindFetchError, "FetchFeed", errors.New("flaky upstream"))

	env.inst.tick(context.Background())

	if env.fetcher.callCount() != 3 {
		t.Errorf("fetch attempts = %d, want 3", env.fetcher.callCount())
	}
	if got := env.publisher.publishes(); len(got) != 1 {
		t.Errorf("publishes = %d, want 1 after recovery", len(got))
	}
	st := env.states.stored(testSourceID)
	if st == nil || st.LastChecked == nil {
		t.Error("lastChecked must advance once the tick recovers")
	}
}

func TestTick_NonRetryableFetchFailsFast(t *testing.T) {
	env := newTickEnv()
	env.fetcher.failures = 3
	env.fetcher.err = errors.New("url rejected") // untagged, so not retryable

	env.inst.tick(context.Background())

	if env.fetcher.callCount() != 1 {
		t.Errorf("fetch attempts = %d, want 1 for a non-retryable error", env.fetcher.callCount())
	}
	if got := env.sleeper.count("retry-backoff:fetch-feed"); got != 0 {
		t.Errorf("backoff sleeps = %d, want 0", got)
	}
}

func TestTick_ParseFailureDoesNotRefetch(t *testing.T) {
	env := newTickEnv()
	env.parser.err = entity.NewPipelineError(entity.KindParseError, "ParseFeed", errors.New("not xml"))

	env.inst.tick(context.Background())

	if env.fetcher.callCount() != 1 {
		t.Errorf("fetch attempts = %d, want 1", env.fetcher.callCount())
	}
	if env.parser.callCount() != 3 {
		t.Errorf("parse attempts = %d, want 3", env.parser.callCount())
	}
	if env.articles.insertCount() != 0 {
		t.Errorf("insert batches = %d, want 0", env.articles.insertCount())
	}
}

func TestTick_InsertFailureSkipsPublish(t *testing.T) {
	env := newTickEnv()
	env.articles.insertErr = errors.New("db down")

	env.inst.tick(context.Background())

	if got := env.publisher.publishes(); len(got) != 0 {
		t.Errorf("publishes = %d, want 0 when the insert failed", len(got))
	}
	st := env.states.stored(testSourceID)
	if st == nil || st.LastChecked != nil {
		t.Error("lastChecked must not advance when the insert failed")
	}
}

func TestTick_PublishFailureLeavesLastCheckedAlone(t *testing.T) {
	env := newTickEnv()
	env.publisher.err = errors.New("bus down")

	env.inst.tick(context.Background())

	st := env.states.stored(testSourceID)
	if st == nil || st.LastChecked != nil {
		t.Error("lastChecked must not advance when publish fails")
	}
}

func TestTick_StateWriteFailureKeepsSourceMirrorClean(t *testing.T) {
	env := newTickEnv()
	env.states.putErr = errors.New("kv down")

	env.inst.tick(context.Background())

	if _, ok := env.sources.lastCheckedAt(testSourceID); ok {
		t.Error("source mirror must not move when the state write failed")
	}
}

func TestTick_CorruptStateParksInstance(t *testing.T) {
	env := newTickEnv()
	env.states.getErr = fmt.Errorf("decode state: %w", entity.ErrCorruptState)

	env.inst.tick(context.Background())

	if env.fetcher.callCount() != 0 {
		t.Errorf("fetch attempts = %d, want 0 for unusable state", env.fetcher.callCount())
	}
	arms := env.states.armed(testSourceID)
	if len(arms) != 1 {
		t.Fatalf("SetNextTick calls = %d, want 1", len(arms))
	}
	if until := time.Until(arms[0]); until < 23*time.Hour {
		t.Errorf("parked for %v, want about 24h", until)
	}
}

func TestTick_InvalidStateShapeParksInstance(t *testing.T) {
	env := newTickEnv()
	env.states.states[testSourceID].ScrapeFrequencyTier = 9

	env.inst.tick(context.Background())

	if env.fetcher.callCount() != 0 {
		t.Errorf("fetch attempts = %d, want 0 for an out-of-range tier", env.fetcher.callCount())
	}
	arms := env.states.armed(testSourceID)
	if len(arms) != 1 {
		t.Fatalf("SetNextTick calls = %d, want 1", len(arms))
	}
	if until := time.Until(arms[0]); until < 23*time.Hour {
		t.Errorf("parked for %v, want about 24h", until)
	}
}

func TestStatus_ReportsStateAndSchedule(t *testing.T) {
	env := newTickEnv()
	at := time.Now().Add(time.Hour)
	env.inst.mu.Lock()
	env.inst.nextTick = at
	env.inst.mu.Unlock()

	st, err := env.inst.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Phase != PhaseScheduled {
		t.Errorf("phase = %s, want %s", st.Phase, PhaseScheduled)
	}
	if !st.NextTickAt.Equal(at) {
		t.Errorf("nextTickAt = %v, want %v", st.NextTickAt, at)
	}
	if st.State == nil || st.State.SourceID != testSourceID {
		t.Errorf("state = %+v, want the persisted blob for source %d", st.State, testSourceID)
	}
}

func TestStatus_PropagatesStateReadError(t *testing.T) {
	env := newTickEnv()
	env.states.getErr = errors.New("kv down")

	if _, err := env.inst.Status(context.Background()); err == nil {
		t.Error("Status() error = nil, want the state read failure surfaced")
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestTrigger_FiresImmediately(t *testing.T) {
	env := newTickEnv()
	env.inst.start(time.Now().Add(time.Hour))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = env.inst.stop(ctx)
	}()

	env.inst.Trigger(context.Background())

	waitFor(t, 2*time.Second, func() bool { return env.fetcher.callCount() > 0 })
	waitFor(t, 2*time.Second, func() bool {
		st := env.states.stored(testSourceID)
		return st != nil && st.LastChecked != nil
	})
}

func TestStop_UnblocksPendingTimer(t *testing.T) {
	env := newTickEnv()
	env.inst.start(time.Now().Add(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.inst.stop(ctx); err != nil {
		t.Fatalf("stop() error = %v", err)
	}
	if env.fetcher.callCount() != 0 {
		t.Errorf("fetch attempts = %d, want 0 for a stopped instance", env.fetcher.callCount())
	}
}
