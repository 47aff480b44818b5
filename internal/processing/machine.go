// Package processing 维护单元摄入流程的状态机，并保证同一单元同时只有一个处理任务。
package processing

import (
	"context"
	"time"

	"edu-rag-go/internal/model"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"

	"github.com/google/uuid"
)

// 状态迁移表。processing→processing 用于阶段边界的进度更新。
var transitions = map[model.ProcessingStatus][]model.ProcessingStatus{
	model.StatusEmpty:      {model.StatusUploaded},
	model.StatusUploaded:   {model.StatusUploaded, model.StatusProcessing},
	model.StatusProcessing: {model.StatusProcessing, model.StatusReady, model.StatusFailed},
	model.StatusReady:      {model.StatusUploaded},
	model.StatusFailed:     {model.StatusUploaded},
}

// CanTransition 判断 from→to 是否合法。
func CanTransition(from, to model.ProcessingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// sourcesOf 返回可以迁移到 to 的全部状态。
func sourcesOf(to model.ProcessingStatus) []model.ProcessingStatus {
	var out []model.ProcessingStatus
	for _, from := range []model.ProcessingStatus{model.StatusEmpty, model.StatusUploaded, model.StatusProcessing, model.StatusReady, model.StatusFailed} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Changes 描述一次迁移要写入的字段，nil 表示不修改。
type Changes struct {
	Status          model.ProcessingStatus
	HasFiles        *bool
	PassageCount    *int
	EmbeddingsReady *bool
	LastError       *string
	RunID           *string
}

// Store 是状态的持久化。Transition 必须是原子的比较并交换：
// 只有当前状态属于 from，且 runID 非空时 run_id 也相等，才写入 changes。
type Store interface {
	Find(ctx context.Context, unitID uint) (*model.ProcessingState, error)
	Ensure(ctx context.Context, unitID uint) error
	Transition(ctx context.Context, unitID uint, from []model.ProcessingStatus, runID string, ch Changes) (bool, error)
}

// Machine 是状态机本身，所有写操作都经过 Store.Transition。
type Machine struct {
	store      Store
	runTimeout time.Duration
	now        func() time.Time
}

func NewMachine(store Store) *Machine {
	return &Machine{store: store, now: time.Now}
}

// SetRunTimeout 设置处理任务的租约：processing 状态超过 d 没有更新时视为任务已失联，
// 可以被新的 Claim 接管。d 为 0 时从不接管。
func (m *Machine) SetRunTimeout(d time.Duration) {
	m.runTimeout = d
}

// Stale 判断 processing 状态的任务是否已失联。
func (m *Machine) Stale(st model.ProcessingState) bool {
	return st.Status == model.StatusProcessing && m.runTimeout > 0 && m.now().Sub(st.UpdatedAt) > m.runTimeout
}

// Get 读取状态，不存在时返回 empty。只读，没有副作用。
func (m *Machine) Get(ctx context.Context, unitID uint) (model.ProcessingState, error) {
	st, err := m.store.Find(ctx, unitID)
	if err != nil {
		return model.ProcessingState{}, err
	}
	if st == nil {
		return model.ProcessingState{UnitID: unitID, Status: model.StatusEmpty}, nil
	}
	return *st, nil
}

// MarkUploaded 记录新上传的文档：empty/uploaded/ready/failed 都进入 uploaded。
// 单元正在处理时不改状态，返回 queued=false，由当前任务结束后接手新文档。
func (m *Machine) MarkUploaded(ctx context.Context, unitID uint) (state model.ProcessingState, queued bool, err error) {
	if err := m.store.Ensure(ctx, unitID); err != nil {
		return model.ProcessingState{}, false, err
	}
	ok, err := m.store.Transition(ctx, unitID, sourcesOf(model.StatusUploaded), "", Changes{
		Status:          model.StatusUploaded,
		HasFiles:        boolPtr(true),
		EmbeddingsReady: boolPtr(false),
	})
	if err != nil {
		return model.ProcessingState{}, false, err
	}
	state, err = m.Get(ctx, unitID)
	if err != nil {
		return model.ProcessingState{}, false, err
	}
	if !ok {
		log.Infof("[StateMachine] 单元 %d 正在处理中, 新文档将在本轮结束后处理", unitID)
	}
	return state, ok, nil
}

// Claim 把 uploaded 的单元置为 processing 并返回本次运行的 runID。
// 已失联的 processing 任务按 run_id 比较并交换后由本次运行接管。
// 已经在处理中时返回 ConcurrencyConflict，其它状态返回 Precondition。
func (m *Machine) Claim(ctx context.Context, unitID uint) (string, error) {
	runID := uuid.NewString()
	ok, err := m.store.Transition(ctx, unitID, []model.ProcessingStatus{model.StatusUploaded}, "", Changes{
		Status:    model.StatusProcessing,
		RunID:     &runID,
		LastError: strPtr(""),
	})
	if err != nil {
		return "", err
	}
	if ok {
		return runID, nil
	}

	st, err := m.Get(ctx, unitID)
	if err != nil {
		return "", err
	}
	if m.Stale(st) {
		ok, err := m.store.Transition(ctx, unitID, []model.ProcessingStatus{model.StatusProcessing}, st.RunID, Changes{
			Status:    model.StatusProcessing,
			RunID:     &runID,
			LastError: strPtr(""),
		})
		if err != nil {
			return "", err
		}
		if ok {
			log.Warnf("[StateMachine] 单元 %d 的处理任务 %s 已 %v 未更新, 由新任务 %s 接管", unitID, st.RunID, m.now().Sub(st.UpdatedAt).Round(time.Second), runID)
			return runID, nil
		}
	}
	if st.Status == model.StatusProcessing {
		return "", errs.Newf(errs.KindConcurrencyConflict, "processing.claim", "单元 %d 已有处理任务在运行", unitID)
	}
	return "", errs.Newf(errs.KindPrecondition, "processing.claim", "单元 %d 当前状态为 %s, 不能开始处理", unitID, st.Status)
}

// Progress 在阶段边界更新进度字段。runID 不再持有该单元时返回 ConcurrencyConflict。
func (m *Machine) Progress(ctx context.Context, unitID uint, runID string, ch Changes) error {
	ch.Status = model.StatusProcessing
	return m.apply(ctx, unitID, runID, ch)
}

// Complete 把单元置为 ready。
func (m *Machine) Complete(ctx context.Context, unitID uint, runID string, passageCount int) error {
	return m.apply(ctx, unitID, runID, Changes{
		Status:          model.StatusReady,
		PassageCount:    &passageCount,
		EmbeddingsReady: boolPtr(true),
		LastError:       strPtr(""),
	})
}

// Fail 把单元置为 failed 并记录可读的错误信息，已有的产物保持不变。
func (m *Machine) Fail(ctx context.Context, unitID uint, runID string, message string) error {
	return m.apply(ctx, unitID, runID, Changes{
		Status:    model.StatusFailed,
		LastError: &message,
	})
}

// Requeue 把失败的单元重新置为 uploaded，用于手动重试。
func (m *Machine) Requeue(ctx context.Context, unitID uint) (bool, error) {
	return m.store.Transition(ctx, unitID, []model.ProcessingStatus{model.StatusFailed}, "", Changes{Status: model.StatusUploaded})
}

func (m *Machine) apply(ctx context.Context, unitID uint, runID string, ch Changes) error {
	ok, err := m.store.Transition(ctx, unitID, []model.ProcessingStatus{model.StatusProcessing}, runID, ch)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Newf(errs.KindConcurrencyConflict, "processing.update", "单元 %d 的处理任务 %s 已失效", unitID, runID)
	}
	return nil
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
