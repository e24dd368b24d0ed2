package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"proctora_backend/internal/config"
	"proctora_backend/internal/model"
	"proctora_backend/internal/util"
	"proctora_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

type fakeAttemptStore struct {
	attempts map[string]*model.Attempt
	upserts  []model.AttemptAnswer
	gradings int

	// 在状态转换落库前执行，用来构造转换窗口内的并发写
	beforeMarkSubmitted func()
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[string]*model.Attempt)}
}

func (f *fakeAttemptStore) Create(attempt *model.Attempt) error {
	if attempt.ID == "" {
		attempt.ID = model.GenerateUUID()
	}
	f.attempts[attempt.ID] = attempt
	return nil
}

func (f *fakeAttemptStore) FindByID(id string) (*model.Attempt, error) {
	attempt, ok := f.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	// 数据库语义：每次查询都是当时的快照，不共享可变状态
	snapshot := *attempt
	return &snapshot, nil
}

func (f *fakeAttemptStore) FindActive(testID string, userID uint) (*model.Attempt, error) {
	for _, a := range f.attempts {
		if a.TestID == testID && a.UserID == userID && a.Status == model.AttemptInProgress {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAttemptStore) MarkSubmitted(id string, now time.Time) (bool, error) {
	if f.beforeMarkSubmitted != nil {
		f.beforeMarkSubmitted()
	}
	attempt, ok := f.attempts[id]
	if !ok || attempt.Status != model.AttemptInProgress {
		return false, nil
	}
	attempt.Status = model.AttemptSubmitted
	attempt.SubmittedAt = &now
	return true, nil
}

func (f *fakeAttemptStore) UpsertAnswer(ans *model.AttemptAnswer) error {
	f.upserts = append(f.upserts, *ans)
	return nil
}

func (f *fakeAttemptStore) StoreGrading(attemptID string, answers []model.AttemptAnswer, totalScore float64, gradedAt time.Time, visibilityAt *time.Time) error {
	attempt, ok := f.attempts[attemptID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if attempt.Status != model.AttemptSubmitted && attempt.Status != model.AttemptGrading {
		return nil
	}
	attempt.Status = model.AttemptGraded
	attempt.Score = &totalScore
	attempt.GradedAt = &gradedAt
	attempt.ResultVisibilityAt = visibilityAt
	attempt.Answers = answers
	f.gradings++
	return nil
}

func (f *fakeAttemptStore) ListByUser(userID uint) ([]model.Attempt, error) {
	var out []model.Attempt
	for _, a := range f.attempts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAttemptStore) ListByTest(testID string, page, limit int) ([]model.Attempt, int64, error) {
	var out []model.Attempt
	for _, a := range f.attempts {
		if a.TestID == testID {
			out = append(out, *a)
		}
	}
	return out, int64(len(out)), nil
}

type fakeTestStore struct {
	tests map[string]*model.Test
}

func (f *fakeTestStore) FindByID(id string) (*model.Test, error) {
	test, ok := f.tests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return test, nil
}

type fakeQuestionStore struct {
	questions []model.Question
}

func (f *fakeQuestionStore) FindByID(id string) (*model.Question, error) {
	for i := range f.questions {
		if f.questions[i].ID == id {
			return &f.questions[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeQuestionStore) ListByTest(testID string) ([]model.Question, error) {
	var out []model.Question
	for _, q := range f.questions {
		if q.TestID == testID {
			out = append(out, q)
		}
	}
	return out, nil
}

type fakeViolationTracker struct {
	records map[string]*model.ViolationRecord
	lastTTL time.Duration
}

func newFakeViolationTracker() *fakeViolationTracker {
	return &fakeViolationTracker{records: make(map[string]*model.ViolationRecord)}
}

func (f *fakeViolationTracker) Record(ctx context.Context, attemptID string, vtype model.ViolationType, ttl time.Duration) (*model.ViolationRecord, error) {
	f.lastTTL = ttl
	record, ok := f.records[attemptID]
	if !ok {
		record = &model.ViolationRecord{}
		f.records[attemptID] = record
	}
	record.Count++
	record.Violations = append(record.Violations, model.ViolationEvent{Type: vtype, Timestamp: time.Now().UnixMilli()})
	snapshot := *record
	return &snapshot, nil
}

func (f *fakeViolationTracker) Get(ctx context.Context, attemptID string) (*model.ViolationRecord, error) {
	record, ok := f.records[attemptID]
	if !ok {
		return &model.ViolationRecord{}, nil
	}
	snapshot := *record
	return &snapshot, nil
}

func (f *fakeViolationTracker) Reset(ctx context.Context, attemptID string) error {
	delete(f.records, attemptID)
	return nil
}

type fakeArmer struct {
	calls []string
	err   error
}

func (f *fakeArmer) Arm(attemptID string, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, attemptID)
	return nil
}

type serviceFixture struct {
	svc        *AttemptService
	attempts   *fakeAttemptStore
	tests      *fakeTestStore
	questions  *fakeQuestionStore
	violations *fakeViolationTracker
	armer      *fakeArmer
	now        time.Time
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Exam.ApplyDefaults()

	f := &serviceFixture{
		attempts:   newFakeAttemptStore(),
		tests:      &fakeTestStore{tests: make(map[string]*model.Test)},
		questions:  &fakeQuestionStore{},
		violations: newFakeViolationTracker(),
		armer:      &fakeArmer{},
		now:        time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewAttemptService(f.attempts, f.tests, f.questions, f.violations, f.armer, cfg)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *serviceFixture) addTest(id string, status model.TestStatus, durationSeconds int) *model.Test {
	test := &model.Test{
		Title:               "Sample",
		DurationSeconds:     durationSeconds,
		Status:              status,
		RevealAnswersPolicy: model.RevealAfterGrading,
	}
	test.ID = id
	f.tests.tests[id] = test
	return test
}

func (f *serviceFixture) addQuestion(id, testID, correct string, marks, negative float64) {
	q := question(id, model.QuestionMCQ, correct, marks, negative)
	q.TestID = testID
	f.questions.questions = append(f.questions.questions, q)
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)

	first, alreadyActive, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if alreadyActive {
		t.Error("first Start reported alreadyActive")
	}
	if !first.ExpiresAt.Equal(f.now.Add(time.Hour)) {
		t.Errorf("expiresAt = %v, want %v", first.ExpiresAt, f.now.Add(time.Hour))
	}

	// 客户端重试不得产生第二场考试
	second, alreadyActive, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !alreadyActive {
		t.Error("second Start did not report alreadyActive")
	}
	if second.ID != first.ID {
		t.Errorf("second Start returned %s, want %s", second.ID, first.ID)
	}
	if len(f.attempts.attempts) != 1 {
		t.Errorf("stored %d attempts, want 1", len(f.attempts.attempts))
	}
}

func TestStartSeparateUsersGetSeparateAttempts(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)

	a1, _, err := f.svc.Start(context.Background(), "t1", 1)
	if err != nil {
		t.Fatal(err)
	}
	a2, _, err := f.svc.Start(context.Background(), "t1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if a1.ID == a2.ID {
		t.Error("two users received the same attempt")
	}
}

func TestStartRejectsUnpublishedTest(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestDraft, 3600)

	if _, _, err := f.svc.Start(context.Background(), "t1", 7); !errors.Is(err, util.ErrTestNotPublished) {
		t.Errorf("err = %v, want ErrTestNotPublished", err)
	}
}

func TestStartFailsWhenArmingFails(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)
	f.armer.err = errors.New("db gone")

	if _, _, err := f.svc.Start(context.Background(), "t1", 7); err == nil {
		t.Error("Start succeeded despite arming failure")
	}
}

func TestSaveAnswerRejectsExpiredByWallClock(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)
	f.addQuestion("q1", "t1", `"c"`, 2, 0)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}

	// 存储里的状态仍是 in_progress，但时钟已经越过 expiresAt
	f.now = attempt.ExpiresAt.Add(time.Second)
	err = f.svc.SaveAnswer(context.Background(), attempt.ID, 7, "q1", json.RawMessage(`"c"`))
	if !errors.Is(err, util.ErrAttemptExpired) {
		t.Errorf("err = %v, want ErrAttemptExpired", err)
	}
	if len(f.attempts.upserts) != 0 {
		t.Error("expired save still reached storage")
	}
}

func TestSaveAnswerRejectsForeignQuestion(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)
	f.addTest("t2", model.TestPublished, 3600)
	f.addQuestion("q-other", "t2", `"c"`, 2, 0)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}

	err = f.svc.SaveAnswer(context.Background(), attempt.ID, 7, "q-other", json.RawMessage(`"c"`))
	if !errors.Is(err, util.ErrQuestionNotFound) {
		t.Errorf("err = %v, want ErrQuestionNotFound", err)
	}
}

func TestSaveAnswerRejectsAfterSubmit(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)
	f.addQuestion("q1", "t1", `"c"`, 2, 0)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Submit(context.Background(), attempt.ID, 7, false); err != nil {
		t.Fatal(err)
	}

	err = f.svc.SaveAnswer(context.Background(), attempt.ID, 7, "q1", json.RawMessage(`"c"`))
	if !errors.Is(err, util.ErrAlreadySubmitted) {
		t.Errorf("err = %v, want ErrAlreadySubmitted", err)
	}
}

func TestSaveAnswerRejectsOtherUsersAttempt(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)
	f.addQuestion("q1", "t1", `"c"`, 2, 0)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}

	err = f.svc.SaveAnswer(context.Background(), attempt.ID, 99, "q1", json.RawMessage(`"c"`))
	if !errors.Is(err, util.ErrNotOwner) {
		t.Errorf("err = %v, want ErrNotOwner", err)
	}
}

func TestRecordViolationAutoSubmitsAtThreshold(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)
	f.addQuestion("q1", "t1", `"c"`, 2, 0)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}

	max := f.svc.Cfg.LiveExam().MaxViolations
	for i := 1; i < max; i++ {
		status, err := f.svc.RecordViolation(context.Background(), attempt.ID, 7, model.ViolationTabSwitch)
		if err != nil {
			t.Fatalf("violation %d: %v", i, err)
		}
		if status.ShouldAutoSubmit {
			t.Fatalf("violation %d triggered auto submit before the threshold", i)
		}
	}

	status, err := f.svc.RecordViolation(context.Background(), attempt.ID, 7, model.ViolationMinimize)
	if err != nil {
		t.Fatal(err)
	}
	if !status.ShouldAutoSubmit {
		t.Error("threshold violation did not trigger auto submit")
	}
	if attempt.Status != model.AttemptGraded {
		t.Errorf("status = %s, want graded", attempt.Status)
	}
	if f.attempts.gradings != 1 {
		t.Errorf("gradings = %d, want 1", f.attempts.gradings)
	}
}

func TestRecordViolationHonorsReloadedThreshold(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}

	status, err := f.svc.RecordViolation(context.Background(), attempt.ID, 7, model.ViolationTabSwitch)
	if err != nil {
		t.Fatal(err)
	}
	if status.ShouldAutoSubmit {
		t.Fatal("first violation triggered auto submit under default threshold")
	}

	// 监考人员把阈值热调到 2，下一次违规就应强制交卷
	f.svc.Cfg.PublishExam(config.ExamConfig{MaxViolations: 2})

	status, err = f.svc.RecordViolation(context.Background(), attempt.ID, 7, model.ViolationMinimize)
	if err != nil {
		t.Fatal(err)
	}
	if status.MaxViolations != 2 {
		t.Errorf("maxViolations = %d, want reloaded value 2", status.MaxViolations)
	}
	if !status.ShouldAutoSubmit {
		t.Error("second violation did not trigger auto submit under reloaded threshold")
	}
	if f.attempts.attempts[attempt.ID].Status != model.AttemptGraded {
		t.Errorf("status = %s, want graded", f.attempts.attempts[attempt.ID].Status)
	}
}

func TestRecordViolationDuringConfigReload(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}

	exam := f.svc.Cfg.LiveExam()
	exam.MaxViolations = 1000
	f.svc.Cfg.PublishExam(exam)

	// 热加载协程与违规登记并发执行，-race 下必须干净
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				f.svc.Cfg.PublishExam(exam)
			}
		}
	}()

	for i := 0; i < 100; i++ {
		if _, err := f.svc.RecordViolation(context.Background(), attempt.ID, 7, model.ViolationTabSwitch); err != nil {
			t.Fatalf("violation %d: %v", i, err)
		}
	}
	close(done)
	wg.Wait()
}

func TestRecordViolationRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.RecordViolation(context.Background(), attempt.ID, 7, "copy_paste"); !errors.Is(err, util.ErrInvalidViolationType) {
		t.Errorf("err = %v, want ErrInvalidViolationType", err)
	}
}

func TestViolationTTLTracksRemainingTime(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.RecordViolation(context.Background(), attempt.ID, 7, model.ViolationTabSwitch); err != nil {
		t.Fatal(err)
	}
	if f.violations.lastTTL != time.Hour {
		t.Errorf("ttl = %v, want %v", f.violations.lastTTL, time.Hour)
	}

	// 临近结束时 TTL 必须托底，防止到期路径读取前记录就被淘汰
	f.now = attempt.ExpiresAt.Add(-5 * time.Second)
	if _, err := f.svc.RecordViolation(context.Background(), attempt.ID, 7, model.ViolationTabSwitch); err != nil {
		t.Fatal(err)
	}
	floor := time.Duration(f.svc.Cfg.LiveExam().ViolationTTLFloorSeconds) * time.Second
	if f.violations.lastTTL != floor {
		t.Errorf("ttl = %v, want floor %v", f.violations.lastTTL, floor)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)
	f.addQuestion("q1", "t1", `"c"`, 2, 0.5)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.SaveAnswer(context.Background(), attempt.ID, 7, "q1", json.RawMessage(`"c"`)); err != nil {
		t.Fatal(err)
	}
	attempt.Answers = f.attempts.upserts

	if err := f.svc.Submit(context.Background(), attempt.ID, 7, false); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Submit(context.Background(), attempt.ID, 7, false); err != nil {
		t.Fatalf("repeat Submit: %v", err)
	}
	// 到期重投同样只算一次
	if err := f.svc.SubmitExpired(context.Background(), attempt.ID); err != nil {
		t.Fatalf("SubmitExpired after grading: %v", err)
	}

	if f.attempts.gradings != 1 {
		t.Errorf("gradings = %d, want 1", f.attempts.gradings)
	}
	if attempt.Score == nil || *attempt.Score != 2 {
		t.Errorf("score = %v, want 2", attempt.Score)
	}
}

func TestSubmitGradesAnswerSavedDuringTransition(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)
	f.addQuestion("q1", "t1", `"c"`, 2, 0)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}

	// 考试还是 in_progress 时的合法保存，恰好落在交卷方读取
	// 快照之后、状态转换之前
	f.attempts.beforeMarkSubmitted = func() {
		f.attempts.attempts[attempt.ID].Answers = []model.AttemptAnswer{
			{AttemptID: attempt.ID, QuestionID: "q1", GivenAnswer: json.RawMessage(`"c"`), SavedAt: f.now},
		}
	}

	if err := f.svc.Submit(context.Background(), attempt.ID, 7, false); err != nil {
		t.Fatal(err)
	}
	if attempt.Score == nil || *attempt.Score != 2 {
		t.Errorf("score = %v, want 2: answer saved before the transition must be graded", attempt.Score)
	}
}

func TestSubmitRecoversStalledGrading(t *testing.T) {
	f := newFixture(t)
	f.addTest("t1", model.TestPublished, 3600)
	f.addQuestion("q1", "t1", `"c"`, 2, 0)

	// 上一个赢家在判分中途崩溃：状态停在 submitted，没有分数
	attempt := &model.Attempt{
		TestID:    "t1",
		UserID:    7,
		StartAt:   f.now,
		ExpiresAt: f.now.Add(time.Hour),
		Status:    model.AttemptSubmitted,
		Answers: []model.AttemptAnswer{
			{QuestionID: "q1", GivenAnswer: json.RawMessage(`"c"`)},
		},
	}
	attempt.ID = "a1"
	f.attempts.attempts["a1"] = attempt

	if err := f.svc.SubmitExpired(context.Background(), "a1"); err != nil {
		t.Fatal(err)
	}
	if attempt.Status != model.AttemptGraded {
		t.Errorf("status = %s, want graded", attempt.Status)
	}
	if attempt.Score == nil || *attempt.Score != 2 {
		t.Errorf("score = %v, want 2", attempt.Score)
	}
}

func TestSubmitUnknownAttempt(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.SubmitExpired(context.Background(), "missing"); !errors.Is(err, util.ErrAttemptNotFound) {
		t.Errorf("err = %v, want ErrAttemptNotFound", err)
	}
}

func TestGetResultWithholdsUntilVisible(t *testing.T) {
	f := newFixture(t)
	test := f.addTest("t1", model.TestPublished, 3600)
	embargo := f.now.Add(24 * time.Hour)
	test.RevealAnswersPolicy = model.RevealEmbargo
	test.EmbargoAt = &embargo
	f.addQuestion("q1", "t1", `"c"`, 2, 0)

	attempt, _, err := f.svc.Start(context.Background(), "t1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.SaveAnswer(context.Background(), attempt.ID, 7, "q1", json.RawMessage(`"c"`)); err != nil {
		t.Fatal(err)
	}
	attempt.Answers = f.attempts.upserts
	if err := f.svc.Submit(context.Background(), attempt.ID, 7, false); err != nil {
		t.Fatal(err)
	}

	// 封存期内：只有状态，没有分数和对错
	view, err := f.svc.GetResult(context.Background(), attempt.ID, 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if view.Score != nil || view.Results != nil {
		t.Error("sealed result leaked score or per-question data")
	}
	if view.Status != model.AttemptGraded {
		t.Errorf("status = %s, want graded", view.Status)
	}

	// 封存解除后：完整成绩单
	f.now = embargo.Add(time.Minute)
	view, err = f.svc.GetResult(context.Background(), attempt.ID, 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if view.Score == nil || *view.Score != 2 {
		t.Errorf("score = %v, want 2", view.Score)
	}
	if len(view.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(view.Results))
	}
	if !view.Results[0].IsCorrect {
		t.Error("correct answer not marked correct")
	}
	if view.TotalMarks == nil || *view.TotalMarks != 2 {
		t.Errorf("totalMarks = %v, want 2", view.TotalMarks)
	}
}
