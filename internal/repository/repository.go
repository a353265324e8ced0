package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"craftly/marketplace/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateUser inserts the user unless one with the same email already
// exists. Reports whether a row was inserted.
func (s *Store) CreateUser(ctx context.Context, user model.User) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
	`, user.ID, user.Email, user.Name, user.Role, user.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, role, created_at
		FROM users
		WHERE email = $1
	`, email)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt)
	return user, err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, role, created_at
		FROM users
		WHERE id = $1
	`, userID)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt)
	return user, err
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, name, role, created_at
		FROM users
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListInstructors returns instructor users sorted by how many classes
// they run, busiest first.
func (s *Store) ListInstructors(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.email, u.name, u.role, u.created_at
		FROM users u
		LEFT JOIN classes c ON c.instructor_email = u.email
		WHERE u.role = 'instructor'
		GROUP BY u.id
		ORDER BY COUNT(c.id) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *Store) UpdateUserRole(ctx context.Context, userID, role string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET role = $1
		WHERE id = $2
		RETURNING id, email, name, role, created_at
	`, role, userID)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt)
	return user, err
}

func (s *Store) DeleteUser(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) CreateClass(ctx context.Context, class model.Class) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO classes (id, name, instructor_name, instructor_email, image, price, available_seats, total_students, status, feedback, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, class.ID, class.Name, class.InstructorName, class.InstructorEmail, class.Image, class.Price, class.AvailableSeats, class.TotalStudents, class.Status, class.Feedback, class.CreatedAt)
	return err
}

func (s *Store) GetClass(ctx context.Context, classID string) (model.Class, error) {
	var class model.Class
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, instructor_name, instructor_email, image, price, available_seats, total_students, status, feedback, created_at
		FROM classes
		WHERE id = $1
	`, classID)
	err := scanClass(row, &class)
	return class, err
}

func (s *Store) ListClasses(ctx context.Context, limit int) ([]model.Class, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, instructor_name, instructor_email, image, price, available_seats, total_students, status, feedback, created_at
		FROM classes
		ORDER BY total_students DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClasses(rows)
}

func (s *Store) ListClassesByInstructor(ctx context.Context, email string) ([]model.Class, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, instructor_name, instructor_email, image, price, available_seats, total_students, status, feedback, created_at
		FROM classes
		WHERE instructor_email = $1
		ORDER BY created_at DESC
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClasses(rows)
}

func (s *Store) UpdateClassStatus(ctx context.Context, classID, status string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE classes SET status = $1 WHERE id = $2`, status, classID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) SetClassFeedback(ctx context.Context, classID, feedback string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE classes SET feedback = $1 WHERE id = $2`, feedback, classID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteClass(ctx context.Context, classID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM classes WHERE id = $1`, classID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AdjustClassSeats consumes one seat: available_seats down, total_students
// up, in a single conditional update. Reports false when the class is
// missing or already full.
func (s *Store) AdjustClassSeats(ctx context.Context, classID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE classes
		SET available_seats = available_seats - 1, total_students = total_students + 1
		WHERE id = $1 AND available_seats > 0
	`, classID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) CreateEnrollment(ctx context.Context, enrollment model.Enrollment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enrollments (id, student_email, class_id, class_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, enrollment.ID, enrollment.StudentEmail, enrollment.ClassID, enrollment.ClassName, enrollment.CreatedAt)
	return err
}

func (s *Store) GetEnrollment(ctx context.Context, enrollmentID string) (model.Enrollment, error) {
	var enrollment model.Enrollment
	row := s.pool.QueryRow(ctx, `
		SELECT id, student_email, class_id, class_name, created_at
		FROM enrollments
		WHERE id = $1
	`, enrollmentID)
	err := row.Scan(&enrollment.ID, &enrollment.StudentEmail, &enrollment.ClassID, &enrollment.ClassName, &enrollment.CreatedAt)
	return enrollment, err
}

func (s *Store) ListEnrollmentsByEmail(ctx context.Context, email string) ([]model.Enrollment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_email, class_id, class_name, created_at
		FROM enrollments
		WHERE student_email = $1
		ORDER BY created_at DESC
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	enrollments := []model.Enrollment{}
	for rows.Next() {
		var enrollment model.Enrollment
		if err := rows.Scan(&enrollment.ID, &enrollment.StudentEmail, &enrollment.ClassID, &enrollment.ClassName, &enrollment.CreatedAt); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, enrollment)
	}
	return enrollments, rows.Err()
}

// DeleteEnrollment is the conditional consume primitive: the reported
// outcome tells the caller whether a row was actually removed, so two
// concurrent settlements of the same enrollment cannot both succeed.
func (s *Store) DeleteEnrollment(ctx context.Context, enrollmentID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM enrollments WHERE id = $1`, enrollmentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RecordPayment appends a payment. The enrollment id doubles as an
// idempotency key: a second record for the same enrollment is not
// inserted, and the reported outcome says so.
func (s *Store) RecordPayment(ctx context.Context, payment model.Payment) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, email, class_id, enrollment_id, class_name, amount, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (enrollment_id) DO NOTHING
	`, payment.ID, payment.Email, payment.ClassID, payment.EnrollmentID, payment.ClassName, payment.Amount, payment.TransactionID, payment.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListPaymentsByEmail(ctx context.Context, email string) ([]model.Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, class_id, enrollment_id, class_name, amount, transaction_id, created_at
		FROM payments
		WHERE email = $1
		ORDER BY created_at DESC
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayments(rows)
}

// ListUnsettledPayments returns payments whose enrollment row still
// exists, i.e. settlements that recorded the charge but never consumed
// the seat. These are the reconciliation backlog.
func (s *Store) ListUnsettledPayments(ctx context.Context, limit int) ([]model.Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.email, p.class_id, p.enrollment_id, p.class_name, p.amount, p.transaction_id, p.created_at
		FROM payments p
		JOIN enrollments e ON e.id = p.enrollment_id
		ORDER BY p.created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (s *Store) CreateBlogPost(ctx context.Context, post model.BlogPost) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blog_posts (id, title, author, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, post.ID, post.Title, post.Author, post.Content, post.CreatedAt)
	return err
}

func (s *Store) ListBlogPosts(ctx context.Context, limit int) ([]model.BlogPost, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, author, content, created_at
		FROM blog_posts
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []model.BlogPost{}
	for rows.Next() {
		var post model.BlogPost
		if err := rows.Scan(&post.ID, &post.Title, &post.Author, &post.Content, &post.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func scanUsers(rows pgx.Rows) ([]model.User, error) {
	users := []model.User{}
	for rows.Next() {
		var user model.User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanClass(row pgx.Row, class *model.Class) error {
	return row.Scan(
		&class.ID,
		&class.Name,
		&class.InstructorName,
		&class.InstructorEmail,
		&class.Image,
		&class.Price,
		&class.AvailableSeats,
		&class.TotalStudents,
		&class.Status,
		&class.Feedback,
		&class.CreatedAt,
	)
}

func scanClasses(rows pgx.Rows) ([]model.Class, error) {
	classes := []model.Class{}
	for rows.Next() {
		var class model.Class
		if err := scanClass(rows, &class); err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, rows.Err()
}

func scanPayments(rows pgx.Rows) ([]model.Payment, error) {
	payments := []model.Payment{}
	for rows.Next() {
		var payment model.Payment
		if err := rows.Scan(&payment.ID, &payment.Email, &payment.ClassID, &payment.EnrollmentID, &payment.ClassName, &payment.Amount, &payment.TransactionID, &payment.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}
