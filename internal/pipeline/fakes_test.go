package pipeline

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/tasks"
)

// memRepo 在内存中实现 pipeline 用到的全部仓储接口。
type memRepo struct {
	mu        sync.Mutex
	subjects  map[uint]model.Subject
	units     map[uint]model.Unit
	topics    map[uint]model.Topic
	docs      map[uint]*model.Document
	passages  map[uint]*model.Passage
	topicSums map[uint]*model.TopicSummary // key: topic id
	unitSums  map[uint]*model.UnitSummary  // key: unit id
	nextID    uint
}

func newMemRepo() *memRepo {
	return &memRepo{
		subjects:  map[uint]model.Subject{},
		units:     map[uint]model.Unit{},
		topics:    map[uint]model.Topic{},
		docs:      map[uint]*model.Document{},
		passages:  map[uint]*model.Passage{},
		topicSums: map[uint]*model.TopicSummary{},
		unitSums:  map[uint]*model.UnitSummary{},
	}
}

func (r *memRepo) id() uint {
	r.nextID++
	return r.nextID
}

// hierarchy

func (r *memRepo) FindSubject(_ context.Context, id uint) (*model.Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subjects[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "subject", "%d", id)
	}
	return &s, nil
}

func (r *memRepo) FindUnitScope(_ context.Context, unitID uint) (*model.UnitScope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[unitID]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "unit", "%d", unitID)
	}
	return &model.UnitScope{Unit: u, Subject: r.subjects[u.SubjectID]}, nil
}

func (r *memRepo) FindTopic(_ context.Context, id uint) (*model.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "topic", "%d", id)
	}
	return &t, nil
}

func (r *memRepo) ListTopics(_ context.Context, unitID uint) ([]model.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Topic
	for _, t := range r.topics {
		if t.UnitID == unitID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// documents

type memDocs struct{ *memRepo }

func (r memDocs) Create(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.ID = r.id()
	if doc.Status == "" {
		doc.Status = model.DocumentPending
	}
	doc.UpdatedAt = time.Now()
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r memDocs) FindByID(_ context.Context, id uint) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "document", "%d", id)
	}
	cp := *d
	return &cp, nil
}

func (r memDocs) ListByUnit(_ context.Context, unitID uint) ([]model.Document, error) {
	return r.list(unitID, "")
}

func (r memDocs) ListByUnitAndStatus(_ context.Context, unitID uint, status model.DocumentStatus) ([]model.Document, error) {
	return r.list(unitID, status)
}

func (r memDocs) list(unitID uint, status model.DocumentStatus) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Document
	for _, d := range r.docs {
		if d.UnitID == unitID && (status == "" || d.Status == status) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memDocs) UpdateStatus(_ context.Context, id uint, status model.DocumentStatus, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[id].Status = status
	r.docs[id].ErrorMessage = message
	r.docs[id].UpdatedAt = time.Now()
	return nil
}

// passages

type memPassages struct{ *memRepo }

func (r memPassages) ReplaceForDocument(_ context.Context, documentID uint, rows []*model.Passage) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var old []uint
	for id, p := range r.passages {
		if p.DocumentID == documentID {
			old = append(old, id)
			delete(r.passages, id)
		}
	}
	sort.Slice(old, func(i, j int) bool { return old[i] < old[j] })
	for _, p := range rows {
		p.ID = r.id()
		cp := *p
		r.passages[p.ID] = &cp
	}
	return old, nil
}

func (r memPassages) filter(keep func(*model.Passage) bool) []model.Passage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Passage
	for _, p := range r.passages {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memPassages) ListByUnit(_ context.Context, unitID uint, onlyUnembedded bool) ([]model.Passage, error) {
	return r.filter(func(p *model.Passage) bool { return p.UnitID == unitID && (!onlyUnembedded || !p.Embedded) }), nil
}

func (r memPassages) ListByTopic(_ context.Context, topicID uint) ([]model.Passage, error) {
	return r.filter(func(p *model.Passage) bool { return p.TopicID == topicID }), nil
}

func (r memPassages) FindByIDs(_ context.Context, ids []uint) ([]model.Passage, error) {
	set := map[uint]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return r.filter(func(p *model.Passage) bool { return set[p.ID] }), nil
}

func (r memPassages) MarkEmbedded(_ context.Context, ids []uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if p, ok := r.passages[id]; ok {
			p.Embedded = true
		}
	}
	return nil
}

func (r memPassages) CountByUnit(_ context.Context, unitID uint) (int64, error) {
	return int64(len(r.filter(func(p *model.Passage) bool { return p.UnitID == unitID }))), nil
}

func (r memPassages) CountByTopic(_ context.Context, topicID uint) (int64, int64, error) {
	all := r.filter(func(p *model.Passage) bool { return p.TopicID == topicID })
	var pending int64
	for _, p := range all {
		if !p.Embedded {
			pending++
		}
	}
	return int64(len(all)), pending, nil
}

func (r memPassages) FindBatch(_ context.Context, afterID uint, limit int) ([]model.Passage, error) {
	out := r.filter(func(p *model.Passage) bool { return p.ID > afterID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// summaries

type memSummaries struct{ *memRepo }

func (r memSummaries) FindTopicSummary(_ context.Context, topicID uint) (*model.TopicSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.topicSums[topicID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r memSummaries) FindUnitSummary(_ context.Context, unitID uint) (*model.UnitSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.unitSums[unitID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r memSummaries) SaveTopicSummary(_ context.Context, s *model.TopicSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.topicSums[s.TopicID]; ok {
		s.ID = old.ID
	} else {
		s.ID = r.id()
	}
	cp := *s
	r.topicSums[s.TopicID] = &cp
	return nil
}

func (r memSummaries) SaveUnitSummary(_ context.Context, s *model.UnitSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.unitSums[s.UnitID]; ok {
		s.ID = old.ID
	} else {
		s.ID = r.id()
	}
	cp := *s
	r.unitSums[s.UnitID] = &cp
	return nil
}

func (r memSummaries) ListTopicSummaries(_ context.Context, unitID uint) ([]model.TopicSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TopicSummary
	for _, s := range r.topicSums {
		if s.UnitID == unitID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r memSummaries) TopicSummariesByIDs(_ context.Context, ids []uint) ([]model.TopicSummary, error) {
	all, _ := r.AllTopicSummaries(context.Background())
	var out []model.TopicSummary
	for _, s := range all {
		for _, id := range ids {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (r memSummaries) UnitSummariesByIDs(_ context.Context, ids []uint) ([]model.UnitSummary, error) {
	all, _ := r.AllUnitSummaries(context.Background())
	var out []model.UnitSummary
	for _, s := range all {
		for _, id := range ids {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (r memSummaries) MarkTopicSummaryEmbedded(_ context.Context, id uint, embedded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.topicSums {
		if s.ID == id {
			s.Embedded = embedded
		}
	}
	return nil
}

func (r memSummaries) MarkUnitSummaryEmbedded(_ context.Context, id uint, embedded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.unitSums {
		if s.ID == id {
			s.Embedded = embedded
		}
	}
	return nil
}

func (r memSummaries) AllTopicSummaries(_ context.Context) ([]model.TopicSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TopicSummary
	for _, s := range r.topicSums {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memSummaries) AllUnitSummaries(_ context.Context) ([]model.UnitSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.UnitSummary
	for _, s := range r.unitSums {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// hashEmbedder 根据文本哈希生成确定性的 3 维向量。
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *hashEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	v := h.Sum32()
	return []float32{float32(v&0xff) + 1, float32((v>>8)&0xff) + 1, float32((v>>16)&0xff) + 1}, nil
}

type echoGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
	reply string
}

func (g *echoGenerator) Complete(_ context.Context, prompt string, _ int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return "summary text", nil
}

// failingIndex 在 addErr 非空时拒绝写入，其它操作转给 next。
type failingIndex struct {
	next   IndexWriter
	addErr error
}

func (f *failingIndex) Add(ctx context.Context, id uint, kind model.ProvenanceKind, scope model.Scope, vec []float32) (model.IndexEntry, error) {
	if f.addErr != nil {
		return model.IndexEntry{}, f.addErr
	}
	return f.next.Add(ctx, id, kind, scope, vec)
}

func (f *failingIndex) Remove(ctx context.Context, id uint, kind model.ProvenanceKind) (bool, error) {
	return f.next.Remove(ctx, id, kind)
}

// flakyExtractor 在 failOn 指定的调用次数上返回错误。
type flakyExtractor struct {
	mu     sync.Mutex
	inner  Extractor
	calls  int
	failOn map[int]error
}

func (f *flakyExtractor) Extract(ctx context.Context, data []byte, kind model.MediaKind, name string) (string, error) {
	f.mu.Lock()
	f.calls++
	err := f.failOn[f.calls]
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.inner.Extract(ctx, data, kind, name)
}

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []uint
}

func (p *recordingPublisher) Publish(_ context.Context, task tasks.UnitProcessingTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task.UnitID)
	return nil
}
