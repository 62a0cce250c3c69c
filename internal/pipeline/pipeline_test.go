package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"scraping_service/internal/config"
	"scraping_service/internal/models"
	"scraping_service/internal/rules"
)

type fakeStore struct {
	mu         sync.Mutex
	listings   []models.Listing
	candidates []int64
	saved      []models.NormalizedResult
	saveCalls  int
	failSaves  bool
}

func (s *fakeStore) ActiveListings(_ context.Context, _ models.VendorKind) ([]models.Listing, error) {
	return s.listings, nil
}

func (s *fakeStore) ListingsByIDs(_ context.Context, ids []int64) ([]models.Listing, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Listing
	for _, l := range s.listings {
		if want[l.ID] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeStore) RescrapeCandidates(_ context.Context, _ models.VendorKind) ([]int64, error) {
	return s.candidates, nil
}

func (s *fakeStore) SaveResults(_ context.Context, results []models.NormalizedResult, _ time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.failSaves {
		return 0, nil
	}
	s.saved = append(s.saved, results...)
	return len(results), nil
}

type fakeProgress struct {
	mu     sync.Mutex
	states []models.PassProgress
}

func (p *fakeProgress) SaveProgress(_ context.Context, prog models.PassProgress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, prog)
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	summaries []models.PassSummary
}

func (n *fakeNotifier) NotifyPassComplete(_ context.Context, s models.PassSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return nil
}

// fakeFetcher succeeds, except that listings listed in failFirst get a 503
// error status on their first fetch and succeed on the second.
type fakeFetcher struct {
	mu        sync.Mutex
	fetches   map[int64]int
	failFirst map[int64]bool
}

func newFakeFetcher(failFirst ...int64) *fakeFetcher {
	f := &fakeFetcher{
		fetches:   make(map[int64]int),
		failFirst: make(map[int64]bool),
	}
	for _, id := range failFirst {
		f.failFirst[id] = true
	}
	return f
}

func (f *fakeFetcher) Kind() models.VendorKind { return models.VendorEbayAU }

func (f *fakeFetcher) Fetch(_ context.Context, l models.Listing) models.RawResult {
	f.mu.Lock()
	f.fetches[l.ID]++
	n := f.fetches[l.ID]
	f.mu.Unlock()

	if f.failFirst[l.ID] && n == 1 {
		return models.RawResult{
			ListingID:   l.ID,
			VendorSKU:   l.VendorSKU,
			ErrorStatus: "Failed to retrieve: Status 503",
		}
	}
	return models.RawResult{
		ListingID: l.ID,
		VendorSKU: l.VendorSKU,
		Success:   true,
		Fields:    map[string]string{"stock": "3"},
	}
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.fetches {
		n += c
	}
	return n
}

type fakeEngine struct{}

func (fakeEngine) Kind() models.VendorKind { return models.VendorEbayAU }

func (fakeEngine) Apply(raw models.RawResult) models.NormalizedResult {
	res := models.NormalizedResult{
		ListingID:  raw.ListingID,
		FinalPrice: decimal.NewFromInt(10),
		Raw:        raw.Fields,
	}
	if raw.Success {
		res.FinalInventory = 3
	} else {
		res.ErrorDetails = raw.ErrorStatus
		res.NeedsRescrape = strings.Contains(raw.ErrorStatus, "Status 503")
	}
	return res
}

func newTestPipeline(st *fakeStore, f *fakeFetcher) (*Pipeline, *fakeProgress, *fakeNotifier) {
	pr := &fakeProgress{}
	nt := &fakeNotifier{}
	p := &Pipeline{
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
		vendors: config.Vendors{
			EbayAU: config.Vendor{
				Concurrency:      2,
				BatchSize:        10,
				RescrapeBatch:    2,
				Timeout:          time.Second,
				PersistChunkSize: 10,
			},
		},
		store:    st,
		progress: pr,
		notify:   nt,
		fetchers: map[models.VendorKind]Fetcher{models.VendorEbayAU: f},
		engines:  map[models.VendorKind]rules.Engine{models.VendorEbayAU: fakeEngine{}},
		running:  make(map[models.VendorKind]string),
	}
	return p, pr, nt
}

func listing(id, vendorID int64, sku string) models.Listing {
	return models.Listing{ID: id, VendorID: vendorID, VendorKind: models.VendorEbayAU, VendorSKU: sku}
}

func TestRunPassFansOutSharedTargets(t *testing.T) {
	st := &fakeStore{listings: []models.Listing{
		listing(1, 7, "12345.1"),
		listing(2, 7, "12345.2"),
		listing(3, 7, "67890"),
	}}
	f := newFakeFetcher()
	p, pr, nt := newTestPipeline(st, f)

	p.runPass(context.Background(), models.VendorEbayAU, "sess", st.listings, true)

	if got := f.total(); got != 2 {
		t.Fatalf("fetch count = %d, want 2 (one per unique target)", got)
	}
	if len(st.saved) != 3 {
		t.Fatalf("saved %d results, want 3", len(st.saved))
	}
	for _, res := range st.saved {
		if res.FinalInventory != 3 {
			t.Errorf("listing %d inventory = %d, want 3", res.ListingID, res.FinalInventory)
		}
	}

	if len(nt.summaries) != 1 {
		t.Fatalf("got %d notifications, want 1", len(nt.summaries))
	}
	sum := nt.summaries[0]
	if sum.TotalListings != 3 || sum.Successful != 3 || sum.Failed != 0 {
		t.Errorf("summary = %+v, want total 3, successful 3, failed 0", sum)
	}
	if len(sum.RescrapeListingIDs) != 0 {
		t.Errorf("rescrape ids = %v, want none", sum.RescrapeListingIDs)
	}

	if len(pr.states) == 0 {
		t.Fatal("no progress checkpoints written")
	}
	last := pr.states[len(pr.states)-1]
	if last.State != models.PassStateCompleted {
		t.Errorf("final state = %q, want %q", last.State, models.PassStateCompleted)
	}
}

func TestRunPassRescrapeRound(t *testing.T) {
	st := &fakeStore{listings: []models.Listing{
		listing(1, 7, "11111"),
		listing(2, 7, "22222"),
	}}
	f := newFakeFetcher(2)
	p, _, nt := newTestPipeline(st, f)

	p.runPass(context.Background(), models.VendorEbayAU, "sess", st.listings, true)

	f.mu.Lock()
	fetches := f.fetches[2]
	f.mu.Unlock()
	if fetches != 2 {
		t.Fatalf("flagged listing fetched %d times, want 2", fetches)
	}

	sum := nt.summaries[0]
	if sum.Failed != 1 || sum.Successful != 1 {
		t.Errorf("summary = %+v, want 1 failed, 1 successful", sum)
	}
	if len(sum.RescrapeListingIDs) != 0 {
		t.Errorf("rescrape ids = %v, want none after recovery round", sum.RescrapeListingIDs)
	}
}

func TestRunPassPersistFailureStillNotifies(t *testing.T) {
	st := &fakeStore{
		listings: []models.Listing{
			listing(1, 7, "11111"),
			listing(2, 7, "22222"),
			listing(3, 7, "33333"),
		},
		failSaves: true,
	}
	f := newFakeFetcher()
	p, pr, nt := newTestPipeline(st, f)

	p.runPass(context.Background(), models.VendorEbayAU, "sess", st.listings, true)

	if len(nt.summaries) != 1 {
		t.Fatalf("got %d notifications, want 1 even when nothing persisted", len(nt.summaries))
	}
	sum := nt.summaries[0]
	if sum.Successful != 0 || sum.Failed != 3 {
		t.Errorf("summary = %+v, want 0 successful, 3 failed", sum)
	}

	last := pr.states[len(pr.states)-1]
	if last.State != models.PassStateCompleted {
		t.Errorf("final state = %q, want %q", last.State, models.PassStateCompleted)
	}
}

func TestRunPassProgressTotalsStableAcrossRounds(t *testing.T) {
	st := &fakeStore{listings: []models.Listing{
		listing(1, 7, "11111"),
		listing(2, 7, "22222"),
	}}
	f := newFakeFetcher(2)
	p, pr, _ := newTestPipeline(st, f)

	p.runPass(context.Background(), models.VendorEbayAU, "sess", st.listings, true)

	if len(pr.states) < 3 {
		t.Fatalf("got %d checkpoints, want the recovery round to add one", len(pr.states))
	}
	prev := 0
	for _, prog := range pr.states {
		if prog.Total != 2 {
			t.Errorf("checkpoint total = %d, want 2 in every round", prog.Total)
		}
		if prog.Processed < prev {
			t.Errorf("processed went backwards: %d after %d", prog.Processed, prev)
		}
		prev = prog.Processed
	}
	if last := pr.states[len(pr.states)-1]; last.State != models.PassStateCompleted {
		t.Errorf("final state = %q, want %q", last.State, models.PassStateCompleted)
	}
}

func TestRunPassNoExtraRoundForRescrapeSession(t *testing.T) {
	st := &fakeStore{listings: []models.Listing{listing(1, 7, "11111")}}
	f := newFakeFetcher(1)
	p, _, nt := newTestPipeline(st, f)

	p.runPass(context.Background(), models.VendorEbayAU, "sess_rescrape", st.listings, false)

	if got := f.total(); got != 1 {
		t.Fatalf("fetch count = %d, want 1 (no chained round)", got)
	}
	if got := nt.summaries[0].RescrapeListingIDs; len(got) != 1 || got[0] != 1 {
		t.Errorf("rescrape ids = %v, want [1]", got)
	}
}

func TestStartPassRejectsConcurrentPass(t *testing.T) {
	st := &fakeStore{listings: []models.Listing{listing(1, 7, "11111")}}
	p, _, _ := newTestPipeline(st, newFakeFetcher())

	if err := p.acquire(models.VendorEbayAU, "busy"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	_, err := p.StartPass(context.Background(), models.VendorEbayAU)
	if !errors.Is(err, ErrPassInProgress) {
		t.Fatalf("err = %v, want ErrPassInProgress", err)
	}
}

func TestRescrapeNoCandidates(t *testing.T) {
	st := &fakeStore{}
	p, _, _ := newTestPipeline(st, newFakeFetcher())

	_, err := p.Rescrape(context.Background(), models.RescrapeRequest{VendorKind: models.VendorEbayAU})
	if !errors.Is(err, ErrNoRescrapeCandidates) {
		t.Fatalf("err = %v, want ErrNoRescrapeCandidates", err)
	}
}

func TestRescrapeUsesStoredCandidates(t *testing.T) {
	st := &fakeStore{
		listings:   []models.Listing{listing(5, 7, "55555")},
		candidates: []int64{5},
	}
	p, _, nt := newTestPipeline(st, newFakeFetcher())

	started, err := p.Rescrape(context.Background(), models.RescrapeRequest{VendorKind: models.VendorEbayAU})
	if err != nil {
		t.Fatalf("rescrape: %v", err)
	}
	if started.Queued != 1 {
		t.Errorf("queued = %d, want 1", started.Queued)
	}
	if !strings.HasSuffix(started.SessionID, "_rescrape") {
		t.Errorf("session id %q missing rescrape suffix", started.SessionID)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		nt.mu.Lock()
		done := len(nt.summaries) == 1
		nt.mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pass did not complete")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
