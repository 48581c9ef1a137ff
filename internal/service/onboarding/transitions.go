package onboarding

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/validate"
)

// step handles one answer for the question it is registered under. It
// moves the cursor before emitting the messages of the new state.
type step func(s *Session, ctx context.Context, input string)

var transitions = map[Question]step{
	QuestionEmail:    (*Session).answerEmail,
	QuestionWebsite:  (*Session).answerWebsite,
	QuestionBusiness: (*Session).answerBusiness,
	QuestionComplete: (*Session).answerComplete,
}

func (s *Session) answerEmail(ctx context.Context, input string) {
	email := strings.TrimSpace(input)
	if !validate.Email(email) {
		s.moveTo(QuestionEmail)
		s.emit(ctx, assistant(EmailRetry))
		return
	}

	s.updateProfile(QuestionEmail, email)
	s.moveTo(QuestionWebsite)
	s.emit(ctx, assistant(WebsiteQuestion))
}

func (s *Session) answerWebsite(ctx context.Context, input string) {
	website := validate.NormalizeWebsite(input)

	err := validate.Website(website)
	if err == nil {
		err = s.insights.Probe(ctx, website)
	}
	if err != nil {
		s.log.Info("website rejected", zap.String("website", website), zap.Error(err))
		s.moveTo(QuestionWebsite)
		s.emit(ctx, assistant(WebsiteRetry))
		return
	}

	s.updateProfile(QuestionWebsite, website)
	s.moveTo(QuestionBusiness)

	s.emit(ctx, assistant(WebsiteLoading))
	if s.pacer.Pause(ctx) != nil {
		return
	}
	s.emit(ctx, assistant(WebsiteThinking))

	result := s.insights.Fetch(ctx, website)
	if ctx.Err() != nil {
		return
	}
	s.emit(ctx, assistant(result.Text()))

	if s.pacer.Pause(ctx) != nil {
		return
	}
	s.emit(ctx, assistant(BusinessQuestion))
}

func (s *Session) answerBusiness(ctx context.Context, input string) {
	s.updateProfile(QuestionBusiness, input)
	s.moveTo(QuestionComplete)

	s.emit(ctx, assistant(ThankYou))
	s.emit(ctx, calendly())
}

func (s *Session) answerComplete(ctx context.Context, _ string) {
	s.moveTo(QuestionComplete)
	s.emit(ctx, assistant(FollowUp))
}
