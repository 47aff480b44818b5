package service

import (
	"context"
	"strings"

	"edu-rag-go/internal/intent"
	"edu-rag-go/internal/model"
	"edu-rag-go/internal/processing"
	"edu-rag-go/internal/repository"
	"edu-rag-go/internal/retrieval"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/log"
)

// Answerer 根据检索到的上下文生成回答，由 retrieval.Orchestrator 实现。
type Answerer interface {
	Chat(ctx context.Context, q retrieval.Query) (model.ChatResult, error)
}

// ChatService 定义了问答操作的接口。
type ChatService interface {
	Chat(ctx context.Context, id model.Identity, req model.ChatRequest) (model.ChatResult, error)
}

type chatService struct {
	hierarchy      repository.HierarchyRepository
	summaries      repository.SummaryRepository
	machine        *processing.Machine
	answerer       Answerer
	processingText string
}

// NewChatService 创建一个新的 ChatService 实例。processingText 是单元仍在处理时的固定回复。
func NewChatService(hierarchy repository.HierarchyRepository, summaries repository.SummaryRepository,
	machine *processing.Machine, answerer Answerer, processingText string) ChatService {
	if processingText == "" {
		processingText = "This unit is still being processed. Please try again in a few minutes."
	}
	return &chatService{
		hierarchy:      hierarchy,
		summaries:      summaries,
		machine:        machine,
		answerer:       answerer,
		processingText: processingText,
	}
}

// Chat 解析问答范围并交给检索编排。范围限定到某个单元且该单元尚未生成单元摘要、
// 仍处于 uploaded/processing 时，直接返回处理中提示，不调用生成服务。
func (s *chatService) Chat(ctx context.Context, id model.Identity, req model.ChatRequest) (model.ChatResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return model.ChatResult{}, errs.Newf(errs.KindInvalidInput, "chat", "问题不能为空")
	}
	subject, err := s.hierarchy.FindSubject(ctx, req.SubjectID)
	if err != nil {
		return model.ChatResult{}, err
	}
	if !id.CanAccess(*subject) {
		return model.ChatResult{}, errs.Newf(errs.KindForbidden, "chat", "用户 %d 无权访问科目 %d", id.UserID, subject.ID)
	}

	q := retrieval.Query{
		Text:  query,
		Scope: model.Scope{OwnerID: subject.UserID, SubjectID: subject.ID},
		Hints: intent.Hints{SubjectName: subject.Name},
	}

	unitID := uint(0)
	if req.UnitID != nil {
		unitID = *req.UnitID
	}
	if req.TopicID != nil {
		topic, err := s.hierarchy.FindTopic(ctx, *req.TopicID)
		if err != nil {
			return model.ChatResult{}, err
		}
		if unitID != 0 && topic.UnitID != unitID {
			return model.ChatResult{}, errs.Newf(errs.KindInvalidInput, "chat", "主题 %d 不属于单元 %d", topic.ID, unitID)
		}
		unitID = topic.UnitID
		q.Scope.TopicID = topic.ID
		q.Hints.TopicTitle = topic.Title
	}

	if unitID != 0 {
		scope, err := s.hierarchy.FindUnitScope(ctx, unitID)
		if err != nil {
			return model.ChatResult{}, err
		}
		if scope.Subject.ID != subject.ID {
			return model.ChatResult{}, errs.Newf(errs.KindInvalidInput, "chat", "单元 %d 不属于科目 %d", unitID, subject.ID)
		}
		q.Scope.UnitID = unitID
		q.Hints.UnitTitle = scope.Unit.Title

		pending, err := s.stillProcessing(ctx, unitID)
		if err != nil {
			return model.ChatResult{}, err
		}
		if pending {
			log.Infof("[ChatService] 单元 %d 仍在处理中, 返回固定提示", unitID)
			return model.ChatResult{Answer: s.processingText, Intent: intent.Default, Sources: []model.Source{}}, nil
		}
	}

	return s.answerer.Chat(ctx, q)
}

func (s *chatService) stillProcessing(ctx context.Context, unitID uint) (bool, error) {
	st, err := s.machine.Get(ctx, unitID)
	if err != nil {
		return false, err
	}
	if st.Status != model.StatusUploaded && st.Status != model.StatusProcessing {
		return false, nil
	}
	sum, err := s.summaries.FindUnitSummary(ctx, unitID)
	if err != nil {
		return false, err
	}
	return sum == nil, nil
}
