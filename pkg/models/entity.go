package models

import "time"

// Entity is the reference data an execution is bound to. Every interpreter context implements it.
type Entity interface {
	Ref() string
}

// Contact is implemented by contexts that know how to reach a person.
type Contact interface {
	ContactEmail() string
	ContactPhone() string
}

// WorkflowContext is the entity context of the generic workflow variant.
type WorkflowContext struct {
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
}

func (c WorkflowContext) Ref() string {
	return "workflow:" + c.WorkflowID
}

// LeadContext is the entity context of the lead-nurturing variant.
type LeadContext struct {
	ExecutionID  string `json:"execution_id"`
	WorkflowType string `json:"workflow_type"`
	Lead         *Lead  `json:"lead"`
}

func (c LeadContext) Ref() string {
	if c.Lead == nil {
		return "lead:"
	}

	return "lead:" + c.Lead.ID
}

func (c LeadContext) ContactEmail() string {
	if c.Lead == nil {
		return ""
	}

	return c.Lead.Email
}

func (c LeadContext) ContactPhone() string {
	if c.Lead == nil {
		return ""
	}

	return c.Lead.Phone
}

// Lead is a prospect tracked by the CRM.
type Lead struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Phone      string         `json:"phone"`
	Score      float64        `json:"score"`
	Status     string         `json:"status"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Fields flattens the lead into a map usable by condition expressions.
// Custom attributes never shadow the first-class fields.
func (l *Lead) Fields() map[string]any {
	fields := make(map[string]any, len(l.Attributes)+7)
	for k, v := range l.Attributes {
		fields[k] = v
	}

	fields["id"] = l.ID
	fields["name"] = l.Name
	fields["email"] = l.Email
	fields["phone"] = l.Phone
	fields["score"] = l.Score
	fields["status"] = l.Status
	fields["created_at"] = l.CreatedAt.Format(time.RFC3339)

	return fields
}
