package command

import (
	"context"

	"stockroom/errors"
	"stockroom/eventing"
	"stockroom/inventory"
	"stockroom/logging"
	"stockroom/messaging"
	"stockroom/validation"
)

// OnboardUserInput 用户开通命令输入
type OnboardUserInput struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// OnboardUser 注册新用户：写入用户仓储、追加 UserSignedUp 事件，
// 并（配置了 publisher 时）向共享通知主题发布注册通知。
//
// 发布失败会向调用方传播：通知丢失意味着默认库存永远不会开通，
// 调用方必须能感知并重试。
func (s *Service) OnboardUser(ctx context.Context, input OnboardUserInput) (*inventory.User, error) {
	if err := validation.ValidateRequired(input.FullName, "full_name"); err != nil {
		return nil, err
	}
	if err := validation.ValidateEmail(input.Email); err != nil {
		return nil, err
	}

	if existing, err := s.users.GetByEmail(ctx, input.Email); err == nil && existing != nil {
		return nil, errors.NewValidationError("email %q is already registered", input.Email)
	} else if err != nil && !errors.IsNotFound(err) {
		s.logger.Error(ctx, "lookup user by email failed", logging.String("email", input.Email), logging.Error(err))
		return nil, err
	}

	user := &inventory.User{FullName: input.FullName, Email: input.Email}
	id, err := s.users.Create(ctx, user)
	if err != nil {
		s.logger.Error(ctx, "create user failed", logging.String("email", input.Email), logging.Error(err))
		return nil, err
	}
	user.ID = id

	payload := map[string]any{
		eventing.PayloadKeyUserID: id,
		"email":                   input.Email,
	}
	if _, err := s.events.Append(ctx, eventing.EventUserSignedUp, payload); err != nil {
		s.logger.Error(ctx, "append UserSignedUp failed, state and log diverged",
			logging.String("user_id", id), logging.Error(err))
		return nil, err
	}

	if s.publisher != nil {
		msg := messaging.NewSignupNotification(id, input.Email)
		if err := s.publisher.Publish(ctx, msg); err != nil {
			s.logger.Error(ctx, "publish signup notification failed",
				logging.String("user_id", id), logging.Error(err))
			return nil, err
		}
	}

	s.logger.Info(ctx, "user onboarded", logging.String("user_id", id), logging.String("email", input.Email))
	return user, nil
}

// GetUser 按键读取用户
func (s *Service) GetUser(ctx context.Context, id string) (*inventory.User, error) {
	return s.users.Get(ctx, id)
}
