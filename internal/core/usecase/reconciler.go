package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/ports"
)

// SnapshotEveryItems is how many deep-analysis items complete between snapshots.
const SnapshotEveryItems = 3

const (
	defaultSubscriberBuffer = 256
	outboundBuffer          = 1024
	snapshotTimeout         = 10 * time.Second
)

// TrackObserver receives track lifecycle signals, typically for metrics.
type TrackObserver interface {
	TrackStarted(role domain.Role)
	TrackFinished(phase domain.Phase, duration time.Duration)
	CategoryCompleted(category string, findings, dropped int)
	FindingElaborated(fallback bool)
	SnapshotFailed()
}

type ReconcilerOptions struct {
	Publisher ports.ProgressPublisher
	Observer  TrackObserver
	Logger    *slog.Logger
	Now       func() time.Time
}

// TrackReconciler owns every in-flight analysis track. Each track runs in its own
// goroutine and is the only writer of its findings; the reconciler only flips role
// metadata and keeps the single pointer to the displayed document.
type TrackReconciler struct {
	sequencer *CategorySequencer
	stepper   *DeepAnalysisStepper
	snapshots ports.SnapshotStore
	publisher ports.ProgressPublisher
	observer  TrackObserver
	logger    *slog.Logger
	now       func() time.Time
	baseCtx   context.Context

	mu         sync.Mutex
	tracks     map[string]*trackRun
	foreground string

	subsMu   sync.Mutex
	subs     map[uint64]chan domain.ProgressEvent
	nextSub  uint64
	outbound chan domain.ProgressEvent
	closed   bool

	runs     sync.WaitGroup
	pumpDone chan struct{}
}

type trackRun struct {
	mu             sync.Mutex
	track          domain.Track
	text           string
	running        bool
	done           chan struct{}
	finalPersisted bool
}

// NewTrackReconciler builds a reconciler whose tracks run under ctx: canceling ctx
// interrupts running tracks, which keep their last snapshot for a later resume.
func NewTrackReconciler(
	ctx context.Context,
	sequencer *CategorySequencer,
	stepper *DeepAnalysisStepper,
	snapshots ports.SnapshotStore,
	opts ReconcilerOptions,
) *TrackReconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	r := &TrackReconciler{
		sequencer: sequencer,
		stepper:   stepper,
		snapshots: snapshots,
		publisher: opts.Publisher,
		observer:  opts.Observer,
		logger:    logger,
		now:       now,
		baseCtx:   ctx,
		tracks:    make(map[string]*trackRun),
		subs:      make(map[uint64]chan domain.ProgressEvent),
	}
	if r.publisher != nil {
		r.outbound = make(chan domain.ProgressEvent, outboundBuffer)
		r.pumpDone = make(chan struct{})
		go r.pump()
	}
	return r
}

func (r *TrackReconciler) StartAnalysis(ctx context.Context, req domain.StartRequest) (domain.Track, error) {
	documentID := strings.TrimSpace(req.DocumentID)
	if documentID == "" {
		return domain.Track{}, domain.WrapError(domain.ErrInvalidInput, "start analysis", fmt.Errorf("document_id is required"))
	}

	if run, ok := r.lookup(documentID); ok {
		return run.view(), nil
	}

	snapshot, err := r.loadSnapshot(ctx, documentID)
	if err != nil {
		return domain.Track{}, err
	}

	text := strings.TrimSpace(req.Text)
	if text == "" && snapshot != nil {
		text = snapshot.DocumentText
	}
	if text == "" && (snapshot == nil || snapshot.Track.Phase != domain.PhaseComplete) {
		return domain.Track{}, domain.WrapError(domain.ErrInvalidInput, "start analysis", fmt.Errorf("document text is required"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if run, ok := r.tracks[documentID]; ok {
		return run.view(), nil
	}

	role := domain.RoleBackground
	if r.foreground == documentID {
		role = domain.RoleForeground
	}

	if snapshot != nil && snapshot.Track.Phase == domain.PhaseComplete {
		if role == domain.RoleBackground {
			// Nothing is left to run or display; the snapshot store keeps serving it.
			track := snapshot.Track.Clone()
			track.Role = domain.RoleNone
			return track, nil
		}
		run := r.installSnapshotLocked(*snapshot, role)
		return run.view(), nil
	}

	var track domain.Track
	if snapshot != nil {
		track = r.hydrate(*snapshot, req.KnownRisks)
		r.logger.Info("track_resumed", "document_id", documentID, "category_cursor", track.CategoryCursor, "findings", len(track.Findings))
	} else {
		track = domain.Track{
			DocumentID:    documentID,
			Phase:         domain.PhaseSequencing,
			CategoryTotal: r.sequencer.Len(),
			Findings:      []domain.Finding{},
			KnownRisks:    normalizeKnown(req.KnownRisks),
			StartedAt:     r.now(),
		}
	}
	track.Role = role

	run := &trackRun{track: track, text: text}
	r.tracks[documentID] = run

	run.mu.Lock()
	r.emitLocked(run, domain.EventTrackStarted, "", nil)
	r.launchLocked(run)
	view := run.track.Clone()
	run.mu.Unlock()

	return view, nil
}

// SetForeground makes documentID the displayed document. The previously displayed
// track is demoted to background and keeps running untouched. The returned track is
// nil when nothing is known about documentID yet.
func (r *TrackReconciler) SetForeground(ctx context.Context, documentID string) (*domain.Track, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "set foreground", fmt.Errorf("document_id is required"))
	}

	r.mu.Lock()
	previous := r.foreground
	r.foreground = documentID

	if previous != documentID {
		if prevRun, ok := r.tracks[previous]; ok {
			r.demoteLocked(previous, prevRun)
		}
	}

	run, ok := r.tracks[documentID]
	if ok {
		run.mu.Lock()
		if run.track.Role != domain.RoleForeground {
			run.track.Role = domain.RoleForeground
			r.emitLocked(run, domain.EventRoleChanged, "", nil)
		}
		view := run.track.Clone()
		run.mu.Unlock()
		r.mu.Unlock()
		return &view, nil
	}
	r.mu.Unlock()

	snapshot, err := r.loadSnapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.foreground != documentID {
		// Another switch won the race; report the snapshot without displaying it.
		track := snapshot.Track.Clone()
		track.Role = domain.RoleNone
		return &track, nil
	}
	if existing, ok := r.tracks[documentID]; ok {
		view := existing.view()
		return &view, nil
	}
	installed := r.installSnapshotLocked(*snapshot, domain.RoleForeground)
	view := installed.view()
	return &view, nil
}

// RetryFromFailure resumes a failed or interrupted track from the step that failed.
func (r *TrackReconciler) RetryFromFailure(ctx context.Context, documentID string) (domain.Track, error) {
	run, err := r.resumableRun(ctx, documentID, "retry from failure")
	if err != nil {
		return domain.Track{}, err
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	if err := checkResumableLocked(run, "retry from failure"); err != nil {
		return domain.Track{}, err
	}

	run.track.Failure = nil
	run.track.Phase = r.resumePhase(run.track)
	r.emitLocked(run, domain.EventPhaseChanged, "", nil)
	r.launchLocked(run)
	return run.track.Clone(), nil
}

// AcceptPartial skips the category whose classification exhausted its retries and
// continues with the remaining ones, so deep analysis still runs on a set where every
// category was attempted.
func (r *TrackReconciler) AcceptPartial(ctx context.Context, documentID string) (domain.Track, error) {
	run, err := r.resumableRun(ctx, documentID, "accept partial")
	if err != nil {
		return domain.Track{}, err
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	if err := checkResumableLocked(run, "accept partial"); err != nil {
		return domain.Track{}, err
	}
	failure := run.track.Failure
	if failure == nil || run.track.Phase != domain.PhaseFailed {
		return domain.Track{}, domain.WrapError(domain.ErrConflict, "accept partial", fmt.Errorf("track %s has no failed category", documentID))
	}
	if !failure.Resumable || failure.Class == domain.ErrorClassConfiguration {
		return domain.Track{}, domain.WrapError(domain.ErrConflict, "accept partial", fmt.Errorf("%s failure must be fixed before continuing", failure.Class))
	}

	if failure.Category != "" {
		run.track.SkippedCategories = append(run.track.SkippedCategories, failure.Category)
	}
	if failure.Cursor+1 > run.track.CategoryCursor {
		run.track.CategoryCursor = failure.Cursor + 1
	}
	run.track.Failure = nil
	run.track.Phase = r.resumePhase(run.track)
	r.emitLocked(run, domain.EventPartialAccepted, failure.Category, nil)
	r.launchLocked(run)
	return run.track.Clone(), nil
}

func (r *TrackReconciler) Get(ctx context.Context, documentID string) (domain.Track, error) {
	if run, ok := r.lookup(documentID); ok {
		return run.view(), nil
	}
	snapshot, err := r.loadSnapshot(ctx, documentID)
	if err != nil {
		return domain.Track{}, err
	}
	if snapshot == nil {
		return domain.Track{}, domain.WrapError(domain.ErrTrackNotFound, "get track", fmt.Errorf("document_id=%s", documentID))
	}
	track := snapshot.Track.Clone()
	track.Role = domain.RoleNone
	return track, nil
}

// Foreground returns the track the display layer should render.
func (r *TrackReconciler) Foreground() (domain.Track, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.tracks[r.foreground]
	if !ok {
		return domain.Track{}, false
	}
	return run.view(), true
}

func (r *TrackReconciler) ForegroundID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.foreground
}

func (r *TrackReconciler) List() []domain.Track {
	r.mu.Lock()
	runs := make([]*trackRun, 0, len(r.tracks))
	for _, run := range r.tracks {
		runs = append(runs, run)
	}
	r.mu.Unlock()

	out := make([]domain.Track, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.view())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

// Wait blocks until the current run of documentID stops and returns its final state.
func (r *TrackReconciler) Wait(ctx context.Context, documentID string) (domain.Track, error) {
	run, ok := r.lookup(documentID)
	if !ok {
		return r.Get(ctx, documentID)
	}

	run.mu.Lock()
	done := run.done
	running := run.running
	run.mu.Unlock()

	if running && done != nil {
		select {
		case <-ctx.Done():
			return domain.Track{}, ctx.Err()
		case <-done:
		}
	}
	return run.view(), nil
}

// Subscribe returns the progress feed. Events of one track arrive in emission order;
// a subscriber that falls behind by more than buffer events loses the overflow.
func (r *TrackReconciler) Subscribe(buffer int) (<-chan domain.ProgressEvent, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan domain.ProgressEvent, buffer)

	r.subsMu.Lock()
	if r.closed {
		r.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.subsMu.Lock()
			defer r.subsMu.Unlock()
			if sub, ok := r.subs[id]; ok {
				delete(r.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Close waits for running tracks to stop (cancel the base context first to interrupt
// them), then ends the progress feed.
func (r *TrackReconciler) Close() {
	r.runs.Wait()

	r.subsMu.Lock()
	if r.closed {
		r.subsMu.Unlock()
		return
	}
	r.closed = true
	for id, sub := range r.subs {
		delete(r.subs, id)
		close(sub)
	}
	if r.outbound != nil {
		close(r.outbound)
	}
	r.subsMu.Unlock()

	if r.pumpDone != nil {
		<-r.pumpDone
	}
}

func (r *TrackReconciler) lookup(documentID string) (*trackRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.tracks[strings.TrimSpace(documentID)]
	return run, ok
}

func (r *TrackReconciler) loadSnapshot(ctx context.Context, documentID string) (*domain.TrackSnapshot, error) {
	if r.snapshots == nil {
		return nil, nil
	}
	snapshot, err := r.snapshots.GetByDocumentID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrTrackNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snapshot, nil
}

// resumableRun finds the in-memory run for documentID, or rebuilds one from its
// persisted snapshot when the process restarted since it stopped.
func (r *TrackReconciler) resumableRun(ctx context.Context, documentID, operation string) (*trackRun, error) {
	documentID = strings.TrimSpace(documentID)
	if run, ok := r.lookup(documentID); ok {
		return run, nil
	}

	snapshot, err := r.loadSnapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, domain.WrapError(domain.ErrTrackNotFound, operation, fmt.Errorf("document_id=%s", documentID))
	}
	if strings.TrimSpace(snapshot.DocumentText) == "" && snapshot.Track.Phase != domain.PhaseComplete {
		return nil, domain.WrapError(domain.ErrConflict, operation, fmt.Errorf("snapshot for %s has no document text", documentID))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.tracks[documentID]; ok {
		return run, nil
	}
	role := domain.RoleBackground
	if r.foreground == documentID {
		role = domain.RoleForeground
	}
	return r.installSnapshotLocked(*snapshot, role), nil
}

func checkResumableLocked(run *trackRun, operation string) error {
	switch {
	case run.running:
		return domain.WrapError(domain.ErrConflict, operation, fmt.Errorf("track %s is still running", run.track.DocumentID))
	case run.track.Phase == domain.PhaseComplete:
		return domain.WrapError(domain.ErrConflict, operation, fmt.Errorf("track %s is already complete", run.track.DocumentID))
	}
	return nil
}

func (r *TrackReconciler) resumePhase(track domain.Track) domain.Phase {
	if track.CategoryCursor < r.sequencer.Len() {
		return domain.PhaseSequencing
	}
	return domain.PhaseDeepAnalysis
}

// hydrate rebuilds a resumable track from a persisted partial snapshot.
func (r *TrackReconciler) hydrate(snapshot domain.TrackSnapshot, knownRisks []string) domain.Track {
	track := snapshot.Track.Clone()
	track.CategoryTotal = r.sequencer.Len()
	if track.CategoryCursor > track.CategoryTotal {
		track.CategoryCursor = track.CategoryTotal
	}
	for i := range track.Findings {
		track.Findings[i].Analyzing = false
	}
	track.KnownRisks = normalizeKnown(append(track.KnownRisks, knownRisks...))
	track.Failure = nil
	track.Status = domain.TrackStatusIdle
	track.Phase = r.resumePhase(track)
	track.DeepAnalysisCursor = track.CompletedElaborations()
	if track.StartedAt.IsZero() {
		track.StartedAt = r.now()
	}
	return track
}

// installSnapshotLocked registers a persisted track without starting it. Caller holds r.mu.
func (r *TrackReconciler) installSnapshotLocked(snapshot domain.TrackSnapshot, role domain.Role) *trackRun {
	track := snapshot.Track.Clone()
	track.Role = role
	track.Status = domain.TrackStatusIdle
	for i := range track.Findings {
		track.Findings[i].Analyzing = false
	}
	if track.Phase != domain.PhaseComplete && track.Phase != domain.PhaseFailed {
		track.CategoryTotal = r.sequencer.Len()
	}
	run := &trackRun{
		track:          track,
		text:           snapshot.DocumentText,
		finalPersisted: track.Phase == domain.PhaseComplete,
	}
	r.tracks[track.DocumentID] = run
	return run
}

// demoteLocked moves a track to background. A finished, durably persisted track is
// then dropped from memory; the snapshot store serves it from then on.
func (r *TrackReconciler) demoteLocked(documentID string, run *trackRun) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.track.Role != domain.RoleBackground {
		run.track.Role = domain.RoleBackground
		r.emitLocked(run, domain.EventRoleChanged, "", nil)
	}
	if run.track.Phase == domain.PhaseComplete && run.finalPersisted && !run.running {
		delete(r.tracks, documentID)
	}
}

// launchLocked starts the goroutine that advances run. Caller holds run.mu.
func (r *TrackReconciler) launchLocked(run *trackRun) {
	run.running = true
	run.finalPersisted = false
	run.track.Status = domain.TrackStatusRunning
	run.done = make(chan struct{})
	if r.observer != nil {
		r.observer.TrackStarted(run.track.Role)
	}

	r.runs.Add(1)
	go r.runTrack(run, run.done)
}

func (r *TrackReconciler) runTrack(run *trackRun, done chan struct{}) {
	defer r.runs.Done()
	defer close(done)

	started := r.now()
	phase := r.advance(run)

	run.mu.Lock()
	run.running = false
	if run.track.Status != domain.TrackStatusIdle {
		run.track.Status = domain.TrackStatusIdle
	}
	run.mu.Unlock()

	if r.observer != nil {
		r.observer.TrackFinished(phase, r.now().Sub(started))
	}
}

// advance drives the track through its phases and returns the phase it stopped in.
func (r *TrackReconciler) advance(run *trackRun) domain.Phase {
	run.mu.Lock()
	phase := run.track.Phase
	run.mu.Unlock()

	if phase == domain.PhaseSequencing {
		if !r.sequence(run) {
			return r.currentPhase(run)
		}
	}
	if !r.deepAnalyze(run) {
		return r.currentPhase(run)
	}
	r.complete(run)
	return domain.PhaseComplete
}

func (r *TrackReconciler) currentPhase(run *trackRun) domain.Phase {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.track.Phase
}

// sequence runs categories one at a time until the sequencer reports no more.
// It returns false when the track failed or was interrupted.
func (r *TrackReconciler) sequence(run *trackRun) bool {
	for {
		run.mu.Lock()
		req := SequenceRequest{
			DocumentText: run.text,
			AlreadyKnown: append(append([]string(nil), run.track.KnownRisks...), run.track.FindingSpans()...),
			Cursor:       run.track.CategoryCursor,
			OnTransient: func(err error) {
				r.markRetrying(run, err)
			},
		}
		run.mu.Unlock()

		result, err := r.sequencer.RunNextCategory(r.baseCtx, req)
		if err != nil {
			if r.baseCtx.Err() != nil {
				r.interrupt(run)
				return false
			}
			r.fail(run, err)
			return false
		}

		run.mu.Lock()
		if result.CategoryName != "" {
			run.track.Findings = append(run.track.Findings, result.NewFindings...)
			domain.SortFindings(run.track.Findings)
			run.track.CategoryCursor = result.NextCursor
			if result.Summary != "" {
				run.track.Summaries = append(run.track.Summaries, result.CategoryName+": "+result.Summary)
			}
			run.track.Stats.ClassifyCalls += result.Calls
			run.track.Stats.DuplicatesDropped += result.Dropped
			run.track.Status = domain.TrackStatusRunning
			r.emitLocked(run, domain.EventCategoryCompleted, result.CategoryName, result.NewFindings)
			if r.observer != nil {
				r.observer.CategoryCompleted(result.CategoryName, len(result.NewFindings), result.Dropped)
			}
		}
		if !result.HasMore {
			run.track.Phase = domain.PhaseDeepAnalysis
			run.track.DeepAnalysisCursor = run.track.CompletedElaborations()
			r.emitLocked(run, domain.EventPhaseChanged, "", nil)
			r.logger.Info("track_phase_changed", "document_id", run.track.DocumentID, "phase", run.track.Phase, "findings", len(run.track.Findings))
		}
		snapshot := run.snapshotLocked()
		run.mu.Unlock()

		if result.CategoryName != "" || !result.HasMore {
			r.persist(snapshot)
		}
		if !result.HasMore {
			return true
		}
	}
}

func (r *TrackReconciler) deepAnalyze(run *trackRun) bool {
	run.mu.Lock()
	findings := domain.CloneFindings(run.track.Findings)
	run.mu.Unlock()

	onTransient := func(_ int, err error) {
		r.markRetrying(run, err)
	}
	var stopped error
	for update := range r.stepper.Run(r.baseCtx, findings, onTransient) {
		persist := false
		var snapshot domain.TrackSnapshot

		run.mu.Lock()
		idx := update.Index
		if idx >= len(run.track.Findings) || run.track.Findings[idx].ID != update.Finding.ID {
			idx = indexOfFinding(run.track.Findings, update.Finding.ID)
		}
		if idx < 0 {
			run.mu.Unlock()
			r.logger.Error("deep_analysis_unknown_finding", "document_id", run.track.DocumentID, "finding_id", update.Finding.ID)
			continue
		}
		run.track.Findings[idx] = update.Finding
		run.track.Status = domain.TrackStatusRunning

		switch update.Kind {
		case StepStarted:
			r.emitLocked(run, domain.EventFindingStarted, "", []domain.Finding{update.Finding})
		case StepFailed:
			run.track.Stats.ElaborateCalls += update.Calls
			stopped = &domain.DeepAnalysisError{
				Class:     domain.ErrorClassConfiguration,
				FindingID: update.Finding.ID,
				Cursor:    update.Completed,
				Err:       update.Err,
			}
		default:
			run.track.DeepAnalysisCursor = update.Completed
			run.track.Stats.ElaborateCalls += update.Calls
			if update.Kind == StepFallback {
				run.track.Stats.FallbackElaborations++
			}
			r.emitLocked(run, domain.EventFindingCompleted, update.Finding.Category, []domain.Finding{update.Finding})
			if r.observer != nil {
				r.observer.FindingElaborated(update.Kind == StepFallback)
			}
			if update.Completed%SnapshotEveryItems == 0 {
				persist = true
				snapshot = run.snapshotLocked()
			}
		}
		run.mu.Unlock()

		if persist {
			r.persist(snapshot)
		}
	}

	if r.baseCtx.Err() != nil {
		r.interrupt(run)
		return false
	}
	if stopped != nil {
		r.fail(run, stopped)
		return false
	}
	return true
}

func (r *TrackReconciler) complete(run *trackRun) {
	run.mu.Lock()
	run.track.Phase = domain.PhaseComplete
	run.track.Status = domain.TrackStatusIdle
	run.track.DeepAnalysisCursor = run.track.CompletedElaborations()
	r.emitLocked(run, domain.EventTrackCompleted, "", nil)
	snapshot := run.snapshotLocked()
	documentID := run.track.DocumentID
	run.mu.Unlock()

	r.logger.Info("track_completed",
		"document_id", documentID,
		"findings", len(snapshot.Track.Findings),
		"classify_calls", snapshot.Track.Stats.ClassifyCalls,
		"elaborate_calls", snapshot.Track.Stats.ElaborateCalls,
		"fallbacks", snapshot.Track.Stats.FallbackElaborations,
	)

	if !r.persist(snapshot) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	run.mu.Lock()
	defer run.mu.Unlock()
	run.finalPersisted = true
	run.running = false
	if r.tracks[documentID] == run && run.track.Role != domain.RoleForeground {
		delete(r.tracks, documentID)
	}
}

func (r *TrackReconciler) fail(run *trackRun, err error) {
	failure := &domain.Failure{
		Class:     domain.ErrorClassFatal,
		Resumable: true,
		Message:   err.Error(),
	}
	if seqErr, ok := domain.AsSequenceError(err); ok {
		failure.Class = seqErr.Class
		failure.Resumable = seqErr.Resumable
		failure.Category = seqErr.Category
		failure.Cursor = seqErr.Cursor
	}
	if stepErr, ok := domain.AsDeepAnalysisError(err); ok {
		failure.Class = stepErr.Class
		failure.Cursor = stepErr.Cursor
	}

	run.mu.Lock()
	run.track.Phase = domain.PhaseFailed
	run.track.Status = domain.TrackStatusIdle
	run.track.Failure = failure
	r.emitLocked(run, domain.EventTrackFailed, failure.Category, nil)
	snapshot := run.snapshotLocked()
	run.mu.Unlock()

	r.logger.Error("track_failed",
		"document_id", snapshot.Track.DocumentID,
		"class", failure.Class,
		"resumable", failure.Resumable,
		"category", failure.Category,
		"cursor", failure.Cursor,
		"error", err,
	)
	r.persist(snapshot)
}

// interrupt records a track stopped by shutdown so it can resume later.
func (r *TrackReconciler) interrupt(run *trackRun) {
	run.mu.Lock()
	run.track.Status = domain.TrackStatusIdle
	for i := range run.track.Findings {
		run.track.Findings[i].Analyzing = false
	}
	snapshot := run.snapshotLocked()
	run.mu.Unlock()

	r.logger.Warn("track_interrupted", "document_id", snapshot.Track.DocumentID, "phase", snapshot.Track.Phase)
	r.persist(snapshot)
}

func (r *TrackReconciler) markRetrying(run *trackRun, err error) {
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.track.Status == domain.TrackStatusRetrying {
		return
	}
	run.track.Status = domain.TrackStatusRetrying
	r.emitLocked(run, domain.EventRetrying, "", nil)
	if err != nil {
		r.logger.Warn("track_retrying", "document_id", run.track.DocumentID, "error", err)
	}
}

// persist writes a snapshot; failures are logged and never stop the track.
func (r *TrackReconciler) persist(snapshot domain.TrackSnapshot) bool {
	if r.snapshots == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.baseCtx), snapshotTimeout)
	defer cancel()

	if err := r.snapshots.Persist(ctx, snapshot); err != nil {
		r.logger.Error("snapshot_failed",
			"document_id", snapshot.Track.DocumentID,
			"phase", snapshot.Track.Phase,
			"error", err,
		)
		if r.observer != nil {
			r.observer.SnapshotFailed()
		}
		return false
	}
	return true
}

// emitLocked stamps the next sequence number and fans the event out. Caller holds
// run.mu, which keeps a track's events in a total order.
func (r *TrackReconciler) emitLocked(run *trackRun, kind domain.EventKind, category string, delta []domain.Finding) {
	run.track.Sequence++
	run.track.UpdatedAt = r.now()

	var failure *domain.Failure
	if run.track.Failure != nil {
		copied := *run.track.Failure
		failure = &copied
	}
	event := domain.ProgressEvent{
		Kind:               kind,
		DocumentID:         run.track.DocumentID,
		Role:               run.track.Role,
		Phase:              run.track.Phase,
		Sequence:           run.track.Sequence,
		CategoryCursor:     run.track.CategoryCursor,
		CategoryTotal:      run.track.CategoryTotal,
		Category:           category,
		DeepAnalysisCursor: run.track.DeepAnalysisCursor,
		FindingsTotal:      len(run.track.Findings),
		FindingsDelta:      domain.CloneFindings(delta),
		Failure:            failure,
		At:                 run.track.UpdatedAt,
	}
	r.broadcast(event)
}

func (r *TrackReconciler) broadcast(event domain.ProgressEvent) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	if r.closed {
		return
	}

	for id, sub := range r.subs {
		select {
		case sub <- event:
		default:
			r.logger.Warn("progress_subscriber_lagging", "subscriber", id, "document_id", event.DocumentID, "sequence", event.Sequence)
		}
	}
	if r.outbound != nil {
		select {
		case r.outbound <- event:
		default:
			r.logger.Warn("progress_publish_dropped", "document_id", event.DocumentID, "sequence", event.Sequence)
		}
	}
}

func (r *TrackReconciler) pump() {
	defer close(r.pumpDone)
	for event := range r.outbound {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.baseCtx), snapshotTimeout)
		if err := r.publisher.PublishProgress(ctx, event); err != nil {
			r.logger.Warn("progress_publish_failed", "document_id", event.DocumentID, "sequence", event.Sequence, "error", err)
		}
		cancel()
	}
}

func (run *trackRun) view() domain.Track {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.track.Clone()
}

func (run *trackRun) snapshotLocked() domain.TrackSnapshot {
	return domain.TrackSnapshot{
		Track:        run.track.Clone(),
		DocumentText: run.text,
	}
}

func indexOfFinding(findings []domain.Finding, id string) int {
	for i, f := range findings {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func normalizeKnown(texts []string) []string {
	out := make([]string, 0, len(texts))
	seen := make(map[string]struct{}, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, text)
	}
	return out
}

// IsUserFixable reports whether err needs a configuration fix rather than a retry.
func IsUserFixable(err error) bool {
	if seqErr, ok := domain.AsSequenceError(err); ok {
		return seqErr.Class == domain.ErrorClassConfiguration
	}
	if stepErr, ok := domain.AsDeepAnalysisError(err); ok {
		return stepErr.Class == domain.ErrorClassConfiguration
	}
	return errors.Is(err, domain.ErrConfiguration)
}
