package onboarding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
)

func TestReplay(t *testing.T) {
	tests := []struct {
		name        string
		transcript  []chat.Message
		wantCursor  Question
		wantProfile Profile
	}{
		{
			name:       "empty transcript",
			wantCursor: QuestionEmail,
		},
		{
			name:       "greeting only",
			transcript: []chat.Message{assistant(GreetingIntro), assistant(EmailQuestion)},
			wantCursor: QuestionEmail,
		},
		{
			name: "rejected email does not count",
			transcript: []chat.Message{
				assistant(EmailQuestion),
				user("nope"),
				assistant(EmailRetry),
			},
			wantCursor: QuestionEmail,
		},
		{
			name: "website step with insight in between",
			transcript: []chat.Message{
				assistant(EmailQuestion),
				user("jay@bamboo.ai"),
				assistant(WebsiteQuestion),
				user("bamboo.ai"),
				assistant(WebsiteLoading),
				assistant(WebsiteThinking),
				assistant("some insight"),
				assistant(BusinessQuestion),
			},
			wantCursor:  QuestionBusiness,
			wantProfile: Profile{Email: "jay@bamboo.ai", Website: "https://bamboo.ai"},
		},
		{
			name: "stopped while analyzing the website",
			transcript: []chat.Message{
				assistant(EmailQuestion),
				user("jay@bamboo.ai"),
				assistant(WebsiteQuestion),
				user("bamboo.ai"),
				assistant(WebsiteLoading),
				assistant(WebsiteThinking),
			},
			wantCursor:  QuestionBusiness,
			wantProfile: Profile{Email: "jay@bamboo.ai", Website: "https://bamboo.ai"},
		},
		{
			name: "stopped right after the loading line",
			transcript: []chat.Message{
				assistant(WebsiteQuestion),
				user("bamboo.ai"),
				assistant(WebsiteLoading),
			},
			wantCursor:  QuestionBusiness,
			wantProfile: Profile{Website: "https://bamboo.ai"},
		},
		{
			name: "finished",
			transcript: []chat.Message{
				assistant(EmailQuestion),
				user("jay@bamboo.ai"),
				assistant(WebsiteQuestion),
				user("https://bamboo.ai"),
				assistant(BusinessQuestion),
				user("Bamboo"),
				assistant(ThankYou),
				user("hello?"),
				assistant(FollowUp),
			},
			wantCursor:  QuestionComplete,
			wantProfile: Profile{Email: "jay@bamboo.ai", Website: "https://bamboo.ai", Business: "Bamboo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, profile := replay(tt.transcript)
			assert.Equal(t, tt.wantCursor, cursor)
			assert.Equal(t, tt.wantProfile, profile)
		})
	}
}

func TestUnansweredPrompt(t *testing.T) {
	analyzing := []chat.Message{
		assistant(WebsiteQuestion),
		user("bamboo.ai"),
		assistant(WebsiteLoading),
		assistant(WebsiteThinking),
	}
	assert.Equal(t, BusinessQuestion, unansweredPrompt(analyzing, QuestionBusiness))

	withInsight := append(append([]chat.Message{}, analyzing...), assistant("some insight"))
	assert.Equal(t, BusinessQuestion, unansweredPrompt(withInsight, QuestionBusiness))

	asked := append(append([]chat.Message{}, withInsight...), assistant(BusinessQuestion))
	assert.Empty(t, unansweredPrompt(asked, QuestionBusiness))

	answered := append(append([]chat.Message{}, withInsight...), user("Bamboo"))
	assert.Empty(t, unansweredPrompt(answered, QuestionBusiness))

	assert.Empty(t, unansweredPrompt(analyzing, QuestionWebsite))
}

func TestTransitionsCoverEveryQuestion(t *testing.T) {
	for _, q := range []Question{QuestionEmail, QuestionWebsite, QuestionBusiness, QuestionComplete} {
		assert.Contains(t, transitions, q)
	}
}

func TestGreetingShape(t *testing.T) {
	msgs := greeting()
	assert.Equal(t, GreetingIntro, msgs[0].Text)
	assert.Equal(t, EmailQuestion, msgs[len(msgs)-1].Text)
	for _, m := range msgs {
		if m.ShowCalendly {
			assert.Empty(t, m.Text)
		}
	}
}
