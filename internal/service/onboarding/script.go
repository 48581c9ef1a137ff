package onboarding

import (
	"strings"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/validate"
)

// Question is the onboarding question currently waiting for an answer.
type Question string

const (
	QuestionEmail    Question = "email"
	QuestionWebsite  Question = "website"
	QuestionBusiness Question = "business"
	QuestionComplete Question = "complete"
)

// 固定话术
const (
	GreetingIntro = "Hi there! I'm Bamboo, your AI marketing assistant."
	GreetingPitch = "I can look at your website and sketch a first ad campaign for you in a couple of minutes. Prefer to talk to a person? Book a time below."

	EmailQuestion = "To get started, what's your work email?"
	EmailRetry    = "Hmm, that doesn't look like a valid email address. Could you double-check it?"

	WebsiteQuestion = "Thanks. Next, what's your business's website?"
	WebsiteRetry    = "I couldn't reach that website. Could you check the address and send it again?"
	WebsiteLoading  = "Great, let me take a look at your website..."
	WebsiteThinking = "Analyzing your business and thinking about what would work for you..."

	BusinessQuestion = "Last question: what's the name of your business?"

	ThankYou = "Thank you! I've passed everything to our team and they'll reach out with your campaign plan shortly. Want to skip the wait? Grab a time with us below."
	FollowUp = "Thanks for your message! Our team will follow up with you soon."
)

// prompts maps every scripted assistant line that leaves the cursor on a
// question to that question. Used to recover the cursor from a transcript.
var prompts = map[string]Question{
	EmailQuestion:    QuestionEmail,
	EmailRetry:       QuestionEmail,
	WebsiteQuestion:  QuestionWebsite,
	WebsiteRetry:     QuestionWebsite,
	WebsiteLoading:   QuestionBusiness,
	WebsiteThinking:  QuestionBusiness,
	BusinessQuestion: QuestionBusiness,
	ThankYou:         QuestionComplete,
	FollowUp:         QuestionComplete,
}

// greeting is played for conversations without stored history.
func greeting() []chat.Message {
	return []chat.Message{
		assistant(GreetingIntro),
		assistant(GreetingPitch),
		calendly(),
		assistant(EmailQuestion),
	}
}

func assistant(text string) chat.Message {
	return chat.Message{Text: text, Role: chat.RoleAssistant}
}

func user(text string) chat.Message {
	return chat.Message{Text: text, Role: chat.RoleUser}
}

// calendly is the widget-only scheduling message.
func calendly() chat.Message {
	return chat.Message{Role: chat.RoleAssistant, ShowCalendly: true}
}

// Profile holds the answers accepted so far.
type Profile struct {
	Email    string `json:"email,omitempty"`
	Website  string `json:"website,omitempty"`
	Business string `json:"business,omitempty"`
}

// replay walks a stored transcript and returns the question it stopped on
// together with the answers that moved it forward.
func replay(messages []chat.Message) (Question, Profile) {
	var (
		cursor  = QuestionEmail
		profile Profile
		pending string
	)

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			pending = msg.Text
		case chat.RoleAssistant:
			next, ok := prompts[msg.Text]
			if !ok {
				continue
			}
			if next != cursor && pending != "" {
				profile.record(cursor, pending)
			}
			cursor = next
			pending = ""
		}
	}
	return cursor, profile
}

// unansweredPrompt returns the question to ask again when the transcript
// stopped while the website was being analyzed, before the business
// question went out.
func unansweredPrompt(messages []chat.Message, cursor Question) string {
	if cursor != QuestionBusiness {
		return ""
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role == chat.RoleUser {
			return ""
		}
		switch msg.Text {
		case BusinessQuestion:
			return ""
		case WebsiteLoading, WebsiteThinking:
			return BusinessQuestion
		}
	}
	return ""
}

func (p *Profile) record(q Question, answer string) {
	switch q {
	case QuestionEmail:
		p.Email = strings.TrimSpace(answer)
	case QuestionWebsite:
		p.Website = validate.NormalizeWebsite(answer)
	case QuestionBusiness:
		p.Business = strings.TrimSpace(answer)
	}
}
