package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var globalTracer trace.Tracer

// InitGlobalTracer initializes the global tracer for the application.
func InitGlobalTracer() {
	globalTracer = otel.Tracer("aprenda")
}

// GetGlobalTracer returns the global tracer instance for the application.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		// Fallback to default tracer if not initialized
		globalTracer = otel.Tracer("aprenda")
	}
	return globalTracer
}

// TraceFunction starts a new span with a descriptive name for the given service and function.
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetGlobalTracer()
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceAdaptiveFunction starts a new span for an adaptive learning service function.
func TraceAdaptiveFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "adaptive", functionName, attributes...)
}

// TraceExplanationFunction starts a new span for an explanation service function.
func TraceExplanationFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "explanation", functionName, attributes...)
}

// TraceInsightsFunction starts a new span for an insights service function.
func TraceInsightsFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "insights", functionName, attributes...)
}

// TracePlanFunction starts a new span for a study plan service function.
func TracePlanFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "studyplan", functionName, attributes...)
}

// TraceLLMFunction starts a new span for an LLM gateway function.
func TraceLLMFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "llm", functionName, attributes...)
}

// TraceUserFunction starts a new span for a user service function.
func TraceUserFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "user", functionName, attributes...)
}

// TraceTaskFunction starts a new span for a background task function.
func TraceTaskFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "task", functionName, attributes...)
}

// TraceHandlerFunction starts a new span for a handler function.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// AttributeUserID returns a tracing attribute for a user ID.
func AttributeUserID(id int) attribute.KeyValue {
	return attribute.Int("user.id", id)
}

// AttributeTopicID returns a tracing attribute for a topic ID.
func AttributeTopicID(id int) attribute.KeyValue {
	return attribute.Int("topic.id", id)
}

// AttributeSubjectID returns a tracing attribute for a subject ID.
func AttributeSubjectID(id int) attribute.KeyValue {
	return attribute.Int("subject.id", id)
}

// AttributeQuestionID returns a tracing attribute for a question ID.
func AttributeQuestionID(id int) attribute.KeyValue {
	return attribute.Int("question.id", id)
}

// AttributePlanID returns a tracing attribute for a study plan ID.
func AttributePlanID(id int) attribute.KeyValue {
	return attribute.Int("plan.id", id)
}

// AttributeSessionID returns a tracing attribute for a study session ID.
func AttributeSessionID(id int) attribute.KeyValue {
	return attribute.Int("session.id", id)
}

// AttributeDifficulty returns a tracing attribute for a difficulty level.
func AttributeDifficulty(difficulty string) attribute.KeyValue {
	return attribute.String("difficulty", difficulty)
}

// AttributeProficiency returns a tracing attribute for a proficiency value.
func AttributeProficiency(p float64) attribute.KeyValue {
	return attribute.Float64("proficiency", p)
}

// AttributeLimit returns a tracing attribute for a limit value.
func AttributeLimit(limit int) attribute.KeyValue {
	return attribute.Int("limit", limit)
}

// AttributeModel returns a tracing attribute for an LLM model name.
func AttributeModel(model string) attribute.KeyValue {
	return attribute.String("llm.model", model)
}

// AttributeTaskID returns a tracing attribute for a background task ID.
func AttributeTaskID(id string) attribute.KeyValue {
	return attribute.String("task.id", id)
}
