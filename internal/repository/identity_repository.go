package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusdir/directory-api/internal/models"
)

// IdentityRepository provides database access for directory accounts and their
// role-specific profile rows.
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository creates a new instance of IdentityRepository.
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

const identityColumns = `id, username, email, password_hash, role, active, last_login, login_count, created_at, updated_at`

// FindByUsername returns an identity by username.
func (r *IdentityRepository) FindByUsername(ctx context.Context, username string) (*models.Identity, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1 LIMIT 1`, identityColumns)
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, username); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by username: %w", err)
	}
	return &identity, nil
}

// FindByID returns an identity by identifier.
func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 LIMIT 1`, identityColumns)
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by id: %w", err)
	}
	return &identity, nil
}

// FindByUsernameOrEmail resolves an identity by username or by an email held on
// the identity itself or on either role profile. Used by the reset flow where
// the caller may only know a contact address.
func (r *IdentityRepository) FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*models.Identity, error) {
	query := fmt.Sprintf(`SELECT DISTINCT u.%s FROM users u
		LEFT JOIN staff_profiles sf ON sf.user_id = u.id
		LEFT JOIN student_profiles st ON st.user_id = u.id
		WHERE u.username = $1 OR u.email = $1 OR sf.email = $1 OR st.email = $1
		LIMIT 1`, strings.ReplaceAll(identityColumns, ", ", ", u."))
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, usernameOrEmail); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by username or email: %w", err)
	}
	return &identity, nil
}

// UsernameExists reports whether a username is already taken, optionally
// excluding one identity (for updates).
func (r *IdentityRepository) UsernameExists(ctx context.Context, username, excludeID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM users WHERE username = $1 AND id <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, username, excludeID); err != nil {
		return false, fmt.Errorf("check username uniqueness: %w", err)
	}
	return count > 0, nil
}

// EmailExists reports whether a contact email is already registered on the
// identity table or either profile table.
func (r *IdentityRepository) EmailExists(ctx context.Context, email, excludeID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM users u
		LEFT JOIN staff_profiles sf ON sf.user_id = u.id
		LEFT JOIN student_profiles st ON st.user_id = u.id
		WHERE (u.email = $1 OR sf.email = $1 OR st.email = $1) AND u.id <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, email, excludeID); err != nil {
		return false, fmt.Errorf("check email uniqueness: %w", err)
	}
	return count > 0, nil
}

// RecordLogin increments the login counter and stamps last_login.
func (r *IdentityRepository) RecordLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET login_count = login_count + 1, last_login = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// List returns identities based on filters with total count.
func (r *IdentityRepository) List(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(username) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]bool{
		"username":   true,
		"email":      true,
		"role":       true,
		"created_at": true,
		"last_login": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", identityColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var identities []models.Identity
	if err := r.db.SelectContext(ctx, &identities, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list identities: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count identities: %w", err)
	}

	return identities, total, nil
}

// PendingAccounts lists inactive identities awaiting admin approval.
func (r *IdentityRepository) PendingAccounts(ctx context.Context) ([]models.PendingAccount, error) {
	const query = `SELECT id, username, role, created_at FROM users WHERE active = FALSE ORDER BY created_at DESC`
	var pending []models.PendingAccount
	if err := r.db.SelectContext(ctx, &pending, query); err != nil {
		return nil, fmt.Errorf("list pending accounts: %w", err)
	}
	return pending, nil
}

// Create inserts an identity together with its role profile row in one
// transaction; either both land or neither does.
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity, details models.RoleDetails) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create identity: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertUser = `INSERT INTO users (id, username, email, password_hash, role, active, login_count, created_at, updated_at)
		VALUES (:id, :username, :email, :password_hash, :role, :active, :login_count, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertUser, identity); err != nil {
		return fmt.Errorf("create identity: %w", err)
	}

	switch identity.Role {
	case models.RoleStaff:
		if details.Staff == nil {
			break
		}
		profile, err := staffProfileFromDetails(identity, details.Staff)
		if err != nil {
			return err
		}
		const insertStaff = `INSERT INTO staff_profiles (user_id, first_name, last_name, email, department, salary, hire_date, active)
			VALUES (:user_id, :first_name, :last_name, :email, :department, :salary, :hire_date, :active)`
		if _, err := tx.NamedExecContext(ctx, insertStaff, profile); err != nil {
			return fmt.Errorf("create staff profile: %w", err)
		}
	case models.RoleStudent:
		if details.Student == nil {
			break
		}
		profile, err := studentProfileFromDetails(identity, details.Student)
		if err != nil {
			return err
		}
		const insertStudent = `INSERT INTO student_profiles (user_id, first_name, last_name, email, date_of_birth, age, gpa, active)
			VALUES (:user_id, :first_name, :last_name, :email, :date_of_birth, :age, :gpa, :active)`
		if _, err := tx.NamedExecContext(ctx, insertStudent, profile); err != nil {
			return fmt.Errorf("create student profile: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create identity: %w", err)
	}
	return nil
}

// Update modifies mutable identity fields. An empty PasswordHash keeps the
// stored one.
func (r *IdentityRepository) Update(ctx context.Context, identity *models.Identity) error {
	identity.UpdatedAt = time.Now().UTC()
	if identity.PasswordHash != "" {
		const query = `UPDATE users SET username = :username, password_hash = :password_hash, role = :role, active = :active, updated_at = :updated_at WHERE id = :id`
		if _, err := r.db.NamedExecContext(ctx, query, identity); err != nil {
			return fmt.Errorf("update identity: %w", err)
		}
		return nil
	}
	const query = `UPDATE users SET username = :username, role = :role, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, identity); err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return nil
}

// Delete removes an identity row. Profile rows cascade via foreign keys.
func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// SetActive flips the active flag on the identity and both profile tables in a
// single transaction. A profile row exists only for the identity's actual role;
// updates on the other table simply match zero rows. All writes commit together
// or none do.
func (r *IdentityRepository) SetActive(ctx context.Context, id string, active bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE users SET active = $2, updated_at = $3 WHERE id = $1`, id, active, now); err != nil {
		return fmt.Errorf("set identity active: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE staff_profiles SET active = $2 WHERE user_id = $1`, id, active); err != nil {
		return fmt.Errorf("set staff profile active: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE student_profiles SET active = $2 WHERE user_id = $1`, id, active); err != nil {
		return fmt.Errorf("set student profile active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set active: %w", err)
	}
	return nil
}

// CreateLoginAttempt appends one row to the login ledger.
func (r *IdentityRepository) CreateLoginAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}
	const query = `INSERT INTO login_attempts (id, user_id, success, attempted_at) VALUES (:id, :user_id, :success, :attempted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("create login attempt: %w", err)
	}
	return nil
}

func staffProfileFromDetails(identity *models.Identity, d *models.StaffDetails) (*models.StaffProfile, error) {
	profile := &models.StaffProfile{
		UserID:    identity.ID,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
		Salary:    d.Salary,
		Active:    identity.Active,
	}
	if d.Department != "" {
		dept := d.Department
		profile.Department = &dept
	}
	if d.HireDate != "" {
		ts, err := time.Parse("2006-01-02", d.HireDate)
		if err != nil {
			return nil, fmt.Errorf("parse hire date: %w", err)
		}
		profile.HireDate = &ts
	}
	return profile, nil
}

func studentProfileFromDetails(identity *models.Identity, d *models.StudentDetails) (*models.StudentProfile, error) {
	dob, err := time.Parse("2006-01-02", d.DateOfBirth)
	if err != nil {
		return nil, fmt.Errorf("parse date of birth: %w", err)
	}
	age := d.Age
	return &models.StudentProfile{
		UserID:      identity.ID,
		FirstName:   d.FirstName,
		LastName:    d.LastName,
		Email:       d.Email,
		DateOfBirth: dob,
		Age:         &age,
		GPA:         d.GPA,
		Active:      identity.Active,
	}, nil
}
