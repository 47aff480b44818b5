// Package service 包含了应用的业务逻辑层。
// 每个操作都带着调用者的 model.Identity，科目不属于调用者时返回 Forbidden。
package service

import (
	"context"

	"edu-rag-go/internal/model"
	"edu-rag-go/internal/repository"
	"edu-rag-go/pkg/errs"
)

// authorizeUnit 查出单元的完整层级并检查调用者权限。
func authorizeUnit(ctx context.Context, hierarchy repository.HierarchyRepository, id model.Identity, unitID uint) (*model.UnitScope, error) {
	scope, err := hierarchy.FindUnitScope(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if !id.CanAccess(scope.Subject) {
		return nil, errs.Newf(errs.KindForbidden, "service.authorize", "用户 %d 无权访问单元 %d", id.UserID, unitID)
	}
	return scope, nil
}

// authorizeTopic 查出主题及其所属单元并检查调用者权限。
func authorizeTopic(ctx context.Context, hierarchy repository.HierarchyRepository, id model.Identity, topicID uint) (*model.UnitScope, *model.Topic, error) {
	topic, err := hierarchy.FindTopic(ctx, topicID)
	if err != nil {
		return nil, nil, err
	}
	scope, err := authorizeUnit(ctx, hierarchy, id, topic.UnitID)
	if err != nil {
		return nil, nil, err
	}
	return scope, topic, nil
}
