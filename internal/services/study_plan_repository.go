package services

import (
	"context"
	"database/sql"
	"time"

	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

// StudyPlanRepository defines study plan persistence operations
type StudyPlanRepository interface {
	// CreatePlanWithSessions persists a plan and all of its sessions in one
	// transaction. Either everything is written or nothing is.
	CreatePlanWithSessions(ctx context.Context, plan *models.StudyPlan) error

	// GetPlan retrieves a plan with its sessions
	GetPlan(ctx context.Context, planID int) (*models.StudyPlan, error)

	// GetPlansByUser lists a user's plans newest first, without sessions
	GetPlansByUser(ctx context.Context, userID int) ([]*models.StudyPlan, error)

	// UpdatePlanStatus sets a plan's status
	UpdatePlanStatus(ctx context.Context, planID int, status models.PlanStatus) error

	// GetSession retrieves a single session
	GetSession(ctx context.Context, sessionID int) (*models.StudySession, error)

	// UpdateSessionStatus sets a session's status
	UpdateSessionStatus(ctx context.Context, sessionID int, status models.SessionStatus) error

	// RescheduleSession moves a session to a new date and resets it to pending
	RescheduleSession(ctx context.Context, sessionID int, newDate time.Time) error
}

// StudyPlanRepositoryImpl implements StudyPlanRepository
type StudyPlanRepositoryImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewStudyPlanRepository creates a new study plan repository
func NewStudyPlanRepository(db *sql.DB, logger *observability.Logger) StudyPlanRepository {
	return &StudyPlanRepositoryImpl{
		db:     db,
		logger: logger,
	}
}

// CreatePlanWithSessions persists a plan and all of its sessions in one transaction
func (r *StudyPlanRepositoryImpl) CreatePlanWithSessions(ctx context.Context, plan *models.StudyPlan) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "create_plan_with_sessions",
		observability.AttributeUserID(plan.UserID),
		observability.AttributeSubjectID(plan.SubjectID),
		attribute.Int("plan.session_count", len(plan.Sessions)),
	)
	defer observability.FinishSpan(span, &err)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		err = contextutils.WrapError(err, "failed to begin transaction")
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				r.logger.Warn(ctx, "Failed to rollback transaction", map[string]interface{}{"error": rbErr.Error()})
			}
		}
	}()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO study_plans (user_id, subject_id, start_date, end_date, status, goals)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, plan.UserID, plan.SubjectID, plan.StartDate, plan.EndDate, plan.Status, plan.Goals,
	).Scan(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		err = contextutils.WrapError(err, "failed to insert study plan")
		return err
	}

	for i := range plan.Sessions {
		session := &plan.Sessions[i]
		session.PlanID = plan.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO study_sessions (plan_id, topic_id, scheduled_date, duration_minutes, resources, activities, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at
		`, session.PlanID, session.TopicID, session.ScheduledDate, session.DurationMinutes,
			pq.Array(session.Resources), pq.Array(session.Activities), session.Status,
		).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
		if err != nil {
			err = contextutils.WrapError(err, "failed to insert study session")
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		err = contextutils.WrapError(err, "failed to commit study plan")
		return err
	}

	span.SetAttributes(observability.AttributePlanID(plan.ID))
	r.logger.Info(ctx, "Created study plan", map[string]interface{}{
		"plan_id":       plan.ID,
		"user_id":       plan.UserID,
		"subject_id":    plan.SubjectID,
		"session_count": len(plan.Sessions),
	})
	return nil
}

// GetPlan retrieves a plan with its sessions
func (r *StudyPlanRepositoryImpl) GetPlan(ctx context.Context, planID int) (result *models.StudyPlan, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_plan",
		observability.AttributePlanID(planID),
	)
	defer observability.FinishSpan(span, &err)

	plan := &models.StudyPlan{}
	err = r.db.QueryRowContext(ctx, `
		SELECT id, user_id, subject_id, start_date, end_date, status, goals, created_at, updated_at
		FROM study_plans
		WHERE id = $1
	`, planID).Scan(
		&plan.ID,
		&plan.UserID,
		&plan.SubjectID,
		&plan.StartDate,
		&plan.EndDate,
		&plan.Status,
		&plan.Goals,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.ErrStudyPlanNotFound
	}
	if err != nil {
		err = contextutils.WrapError(err, "failed to query study plan")
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plan_id, topic_id, scheduled_date, duration_minutes, resources, activities, status, created_at, updated_at
		FROM study_sessions
		WHERE plan_id = $1
		ORDER BY scheduled_date, id
	`, planID)
	if err != nil {
		err = contextutils.WrapError(err, "failed to query study sessions")
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	for rows.Next() {
		var session models.StudySession
		if err = rows.Scan(
			&session.ID,
			&session.PlanID,
			&session.TopicID,
			&session.ScheduledDate,
			&session.DurationMinutes,
			pq.Array(&session.Resources),
			pq.Array(&session.Activities),
			&session.Status,
			&session.CreatedAt,
			&session.UpdatedAt,
		); err != nil {
			err = contextutils.WrapError(err, "failed to scan study session")
			return nil, err
		}
		plan.Sessions = append(plan.Sessions, session)
	}
	if err = rows.Err(); err != nil {
		err = contextutils.WrapError(err, "failed to iterate study sessions")
		return nil, err
	}

	span.SetAttributes(attribute.Int("plan.session_count", len(plan.Sessions)))
	return plan, nil
}

// GetPlansByUser lists a user's plans newest first, without sessions
func (r *StudyPlanRepositoryImpl) GetPlansByUser(ctx context.Context, userID int) (result []*models.StudyPlan, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_plans_by_user",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, subject_id, start_date, end_date, status, goals, created_at, updated_at
		FROM study_plans
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		err = contextutils.WrapError(err, "failed to query study plans")
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var plans []*models.StudyPlan
	for rows.Next() {
		plan := &models.StudyPlan{}
		if err = rows.Scan(
			&plan.ID,
			&plan.UserID,
			&plan.SubjectID,
			&plan.StartDate,
			&plan.EndDate,
			&plan.Status,
			&plan.Goals,
			&plan.CreatedAt,
			&plan.UpdatedAt,
		); err != nil {
			err = contextutils.WrapError(err, "failed to scan study plan")
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err = rows.Err(); err != nil {
		err = contextutils.WrapError(err, "failed to iterate study plans")
		return nil, err
	}

	span.SetAttributes(attribute.Int("plans.count", len(plans)))
	return plans, nil
}

// UpdatePlanStatus sets a plan's status
func (r *StudyPlanRepositoryImpl) UpdatePlanStatus(ctx context.Context, planID int, status models.PlanStatus) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "update_plan_status",
		observability.AttributePlanID(planID),
		attribute.String("plan.status", string(status)),
	)
	defer observability.FinishSpan(span, &err)

	result, err := r.db.ExecContext(ctx, `
		UPDATE study_plans SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, planID)
	if err != nil {
		err = contextutils.WrapError(err, "failed to update plan status")
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		err = contextutils.WrapError(err, "failed to get rows affected")
		return err
	}
	if affected == 0 {
		return contextutils.ErrStudyPlanNotFound
	}

	return nil
}

// GetSession retrieves a single session
func (r *StudyPlanRepositoryImpl) GetSession(ctx context.Context, sessionID int) (result *models.StudySession, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_session",
		observability.AttributeSessionID(sessionID),
	)
	defer observability.FinishSpan(span, &err)

	session := &models.StudySession{}
	err = r.db.QueryRowContext(ctx, `
		SELECT id, plan_id, topic_id, scheduled_date, duration_minutes, resources, activities, status, created_at, updated_at
		FROM study_sessions
		WHERE id = $1
	`, sessionID).Scan(
		&session.ID,
		&session.PlanID,
		&session.TopicID,
		&session.ScheduledDate,
		&session.DurationMinutes,
		pq.Array(&session.Resources),
		pq.Array(&session.Activities),
		&session.Status,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.ErrStudySessionNotFound
	}
	if err != nil {
		err = contextutils.WrapError(err, "failed to query study session")
		return nil, err
	}

	return session, nil
}

// UpdateSessionStatus sets a session's status
func (r *StudyPlanRepositoryImpl) UpdateSessionStatus(ctx context.Context, sessionID int, status models.SessionStatus) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "update_session_status",
		observability.AttributeSessionID(sessionID),
		attribute.String("session.status", string(status)),
	)
	defer observability.FinishSpan(span, &err)

	result, err := r.db.ExecContext(ctx, `
		UPDATE study_sessions SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, sessionID)
	if err != nil {
		err = contextutils.WrapError(err, "failed to update session status")
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		err = contextutils.WrapError(err, "failed to get rows affected")
		return err
	}
	if affected == 0 {
		return contextutils.ErrStudySessionNotFound
	}

	return nil
}

// RescheduleSession moves a session to a new date and resets it to pending
func (r *StudyPlanRepositoryImpl) RescheduleSession(ctx context.Context, sessionID int, newDate time.Time) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "reschedule_session",
		observability.AttributeSessionID(sessionID),
		attribute.String("session.new_date", newDate.Format("2006-01-02")),
	)
	defer observability.FinishSpan(span, &err)

	result, err := r.db.ExecContext(ctx, `
		UPDATE study_sessions
		SET scheduled_date = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`, newDate, models.SessionStatusPending, sessionID)
	if err != nil {
		err = contextutils.WrapError(err, "failed to reschedule session")
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		err = contextutils.WrapError(err, "failed to get rows affected")
		return err
	}
	if affected == 0 {
		return contextutils.ErrStudySessionNotFound
	}

	return nil
}
