package service

import (
	"context"
	"sync"

	"edu-rag-go/internal/model"
	"edu-rag-go/internal/pipeline"
	"edu-rag-go/internal/retrieval"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/tasks"

	"github.com/stretchr/testify/mock"
)

type memHierarchy struct {
	subjects map[uint]model.Subject
	units    map[uint]model.Unit
	topics   map[uint]model.Topic
}

// newHierarchy 建立两个科目：科目 1（用户 7）下单元 100 含主题 10、11，
// 科目 2（用户 8）下单元 200 含主题 20。
func newHierarchy() *memHierarchy {
	return &memHierarchy{
		subjects: map[uint]model.Subject{
			1: {ID: 1, UserID: 7, Name: "Biology"},
			2: {ID: 2, UserID: 8, Name: "History"},
		},
		units: map[uint]model.Unit{
			100: {ID: 100, SubjectID: 1, Title: "Cells"},
			200: {ID: 200, SubjectID: 2, Title: "Rome"},
		},
		topics: map[uint]model.Topic{
			10: {ID: 10, UnitID: 100, Title: "Membranes"},
			11: {ID: 11, UnitID: 100, Title: "Organelles"},
			20: {ID: 20, UnitID: 200, Title: "Republic"},
		},
	}
}

func (h *memHierarchy) FindSubject(_ context.Context, id uint) (*model.Subject, error) {
	s, ok := h.subjects[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "hierarchy.find_subject", "科目 %d 不存在", id)
	}
	return &s, nil
}

func (h *memHierarchy) FindUnitScope(_ context.Context, id uint) (*model.UnitScope, error) {
	u, ok := h.units[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "hierarchy.find_unit", "单元 %d 不存在", id)
	}
	return &model.UnitScope{Subject: h.subjects[u.SubjectID], Unit: u}, nil
}

func (h *memHierarchy) FindTopic(_ context.Context, id uint) (*model.Topic, error) {
	t, ok := h.topics[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "hierarchy.find_topic", "主题 %d 不存在", id)
	}
	return &t, nil
}

func (h *memHierarchy) ListTopics(_ context.Context, unitID uint) ([]model.Topic, error) {
	var out []model.Topic
	for _, t := range h.topics {
		if t.UnitID == unitID {
			out = append(out, t)
		}
	}
	return out, nil
}

type memDocuments struct {
	mu   sync.Mutex
	rows []model.Document
	err  error
}

func (d *memDocuments) Create(_ context.Context, doc *model.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	doc.ID = uint(len(d.rows) + 1)
	d.rows = append(d.rows, *doc)
	return nil
}

func (d *memDocuments) FindByID(_ context.Context, id uint) (*model.Document, error) {
	for i := range d.rows {
		if d.rows[i].ID == id {
			doc := d.rows[i]
			return &doc, nil
		}
	}
	return nil, errs.Newf(errs.KindNotFound, "document.find", "文档 %d 不存在", id)
}

func (d *memDocuments) ListByUnit(_ context.Context, unitID uint) ([]model.Document, error) {
	var out []model.Document
	for _, r := range d.rows {
		if r.UnitID == unitID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *memDocuments) ListByUnitAndStatus(ctx context.Context, unitID uint, status model.DocumentStatus) ([]model.Document, error) {
	all, _ := d.ListByUnit(ctx, unitID)
	var out []model.Document
	for _, r := range all {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *memDocuments) UpdateStatus(_ context.Context, id uint, status model.DocumentStatus, message string) error {
	for i := range d.rows {
		if d.rows[i].ID == id {
			d.rows[i].Status = status
			d.rows[i].ErrorMessage = message
		}
	}
	return nil
}

type memSummaries struct {
	topics map[uint]model.TopicSummary
	units  map[uint]model.UnitSummary
}

func newSummaries() *memSummaries {
	return &memSummaries{topics: map[uint]model.TopicSummary{}, units: map[uint]model.UnitSummary{}}
}

func (s *memSummaries) FindTopicSummary(_ context.Context, topicID uint) (*model.TopicSummary, error) {
	v, ok := s.topics[topicID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *memSummaries) FindUnitSummary(_ context.Context, unitID uint) (*model.UnitSummary, error) {
	v, ok := s.units[unitID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *memSummaries) SaveTopicSummary(_ context.Context, v *model.TopicSummary) error {
	s.topics[v.TopicID] = *v
	return nil
}

func (s *memSummaries) SaveUnitSummary(_ context.Context, v *model.UnitSummary) error {
	s.units[v.UnitID] = *v
	return nil
}

func (s *memSummaries) ListTopicSummaries(_ context.Context, unitID uint) ([]model.TopicSummary, error) {
	var out []model.TopicSummary
	for _, v := range s.topics {
		if v.UnitID == unitID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *memSummaries) TopicSummariesByIDs(context.Context, []uint) ([]model.TopicSummary, error) {
	return nil, nil
}

func (s *memSummaries) UnitSummariesByIDs(context.Context, []uint) ([]model.UnitSummary, error) {
	return nil, nil
}

func (s *memSummaries) MarkTopicSummaryEmbedded(context.Context, uint, bool) error { return nil }
func (s *memSummaries) MarkUnitSummaryEmbedded(context.Context, uint, bool) error  { return nil }

func (s *memSummaries) AllTopicSummaries(context.Context) ([]model.TopicSummary, error) {
	return nil, nil
}

func (s *memSummaries) AllUnitSummaries(context.Context) ([]model.UnitSummary, error) {
	return nil, nil
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, task tasks.UnitProcessingTask) error {
	return m.Called(ctx, task).Error(0)
}

type mockBuilder struct{ mock.Mock }

func (m *mockBuilder) BuildTopicSummary(ctx context.Context, scope model.UnitScope, topic model.Topic) (*model.TopicSummary, error) {
	args := m.Called(ctx, scope, topic)
	sum, _ := args.Get(0).(*model.TopicSummary)
	return sum, args.Error(1)
}

func (m *mockBuilder) BuildUnitSummary(ctx context.Context, scope model.UnitScope) (*model.UnitSummary, error) {
	args := m.Called(ctx, scope)
	sum, _ := args.Get(0).(*model.UnitSummary)
	return sum, args.Error(1)
}

type mockAnswerer struct{ mock.Mock }

func (m *mockAnswerer) Chat(ctx context.Context, q retrieval.Query) (model.ChatResult, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(model.ChatResult), args.Error(1)
}

type mockRebuilder struct{ mock.Mock }

func (m *mockRebuilder) RebuildPassages(ctx context.Context, ix pipeline.ResettableIndex) (int, error) {
	args := m.Called(ctx, ix)
	return args.Int(0), args.Error(1)
}

func (m *mockRebuilder) RebuildSummaries(ctx context.Context, ix pipeline.ResettableIndex) (int, error) {
	args := m.Called(ctx, ix)
	return args.Int(0), args.Error(1)
}

var (
	owner    = model.Identity{UserID: 7, Username: "lecturer", Role: "USER"}
	stranger = model.Identity{UserID: 8, Username: "other", Role: "USER"}
	admin    = model.Identity{UserID: 1, Username: "admin", Role: "ADMIN"}
)
