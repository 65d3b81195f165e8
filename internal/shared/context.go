package shared

import "context"

// Subject is the authenticated principal attached to a request by the auth
// middleware. Authentication itself happens upstream; by the time a Subject
// exists the bearer token has already been verified.
type Subject struct {
	UserID  int64
	TokenID string
}

type subjectContextKey struct{}

// ContextWithSubject stores the subject in context.
func ContextWithSubject(ctx context.Context, sub *Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, sub)
}

// SubjectFromContext extracts the subject from context.
func SubjectFromContext(ctx context.Context) *Subject {
	sub, _ := ctx.Value(subjectContextKey{}).(*Subject)
	return sub
}
