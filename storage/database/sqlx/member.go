package sqlxrepos

import (
	"context"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/member"
	"github.com/pgri-okutimur/anggota/core/region"
)

const memberColumns = `id, user_id, full_name, nip, nuptk, birth_place, birth_date, gender, phone, email,
	school, position, address, province_id, regency_id, district_id, village_id, photo_path, status,
	member_number, rejection_reason, is_officer, officer_position, approved_at, approved_by, created_at, updated_at`

var memberOrdering = map[string]string{
	"full_name":        "full_name",
	"member_number":    "member_number",
	"school":           "school",
	"status":           "status",
	"officer_position": "officer_position",
	"created_at":       "created_at",
	"approved_at":      "approved_at",
}

type memberRow struct {
	ID              int         `db:"id"`
	UserID          null.Int    `db:"user_id"`
	FullName        string      `db:"full_name"`
	NIP             null.String `db:"nip"`
	NUPTK           null.String `db:"nuptk"`
	BirthPlace      string      `db:"birth_place"`
	BirthDate       null.Time   `db:"birth_date"`
	Gender          string      `db:"gender"`
	Phone           string      `db:"phone"`
	Email           string      `db:"email"`
	School          string      `db:"school"`
	Position        string      `db:"position"`
	Address         string      `db:"address"`
	ProvinceID      null.Int    `db:"province_id"`
	RegencyID       null.Int    `db:"regency_id"`
	DistrictID      null.Int    `db:"district_id"`
	VillageID       null.Int    `db:"village_id"`
	PhotoPath       string      `db:"photo_path"`
	Status          string      `db:"status"`
	MemberNumber    null.String `db:"member_number"`
	RejectionReason string      `db:"rejection_reason"`
	IsOfficer       bool        `db:"is_officer"`
	OfficerPosition string      `db:"officer_position"`
	ApprovedAt      null.Time   `db:"approved_at"`
	ApprovedBy      null.Int    `db:"approved_by"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func nullID(id int) null.Int { return null.NewInt(id, id != 0) }

func toMemberRow(m member.Member) memberRow {
	return memberRow{
		ID:              m.ID,
		UserID:          nullID(m.UserID),
		FullName:        m.FullName,
		NIP:             null.NewString(m.NIP, m.NIP != ""),
		NUPTK:           null.NewString(m.NUPTK, m.NUPTK != ""),
		BirthPlace:      m.BirthPlace,
		BirthDate:       null.NewTime(m.BirthDate, !m.BirthDate.IsZero()),
		Gender:          m.Gender,
		Phone:           m.Phone,
		Email:           m.Email,
		School:          m.School,
		Position:        m.Position,
		Address:         m.Address,
		ProvinceID:      nullID(m.Location.ProvinceID),
		RegencyID:       nullID(m.Location.RegencyID),
		DistrictID:      nullID(m.Location.DistrictID),
		VillageID:       nullID(m.Location.VillageID),
		PhotoPath:       m.PhotoPath,
		Status:          m.Status,
		MemberNumber:    null.NewString(m.MemberNumber, m.MemberNumber != ""),
		RejectionReason: m.RejectionReason,
		IsOfficer:       m.IsOfficer,
		OfficerPosition: m.OfficerPosition,
		ApprovedAt:      null.NewTime(m.ApprovedAt.UTC(), !m.ApprovedAt.IsZero()),
		ApprovedBy:      nullID(m.ApprovedBy),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

func (r memberRow) member() member.Member {
	m := member.Member{
		ID:         r.ID,
		UserID:     r.UserID.Int,
		FullName:   r.FullName,
		NIP:        r.NIP.String,
		NUPTK:      r.NUPTK.String,
		BirthPlace: r.BirthPlace,
		Gender:     r.Gender,
		Phone:      r.Phone,
		Email:      r.Email,
		School:     r.School,
		Position:   r.Position,
		Address:    r.Address,
		Location: region.Selection{
			ProvinceID: r.ProvinceID.Int,
			RegencyID:  r.RegencyID.Int,
			DistrictID: r.DistrictID.Int,
			VillageID:  r.VillageID.Int,
		},
		PhotoPath:       r.PhotoPath,
		Status:          r.Status,
		MemberNumber:    r.MemberNumber.String,
		RejectionReason: r.RejectionReason,
		IsOfficer:       r.IsOfficer,
		OfficerPosition: r.OfficerPosition,
		ApprovedBy:      r.ApprovedBy.Int,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if r.BirthDate.Valid {
		y, mo, d := r.BirthDate.Time.Date()
		m.BirthDate = time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	}
	if r.ApprovedAt.Valid {
		m.ApprovedAt = r.ApprovedAt.Time.UTC()
	}
	return m
}

type memberRepository struct {
	db *sqlx.DB
}

var _ member.Repository = (*memberRepository)(nil) // interface compliance check

func NewMemberRepository(db *sqlx.DB) member.Repository {
	return &memberRepository{db: db}
}

func (repo *memberRepository) trapUniqueErr(err error, msg string) error {
	if constraint, ok := violatedConstraint(err); ok && constraint == "member_member_number_key" {
		return member.ErrNumberTaken
	}
	return errors.Wrap(err, msg)
}

func (repo *memberRepository) CreateMember(ctx context.Context, m member.Member) (member.Member, error) {
	row := toMemberRow(m)
	q := `INSERT INTO member (user_id, full_name, nip, nuptk, birth_place, birth_date, gender, phone, email,
			school, position, address, province_id, regency_id, district_id, village_id, photo_path, status,
			member_number, rejection_reason, is_officer, officer_position, approved_at, approved_by, created_at, updated_at)
		VALUES (:user_id, :full_name, :nip, :nuptk, :birth_place, :birth_date, :gender, :phone, :email,
			:school, :position, :address, :province_id, :regency_id, :district_id, :village_id, :photo_path, :status,
			:member_number, :rejection_reason, :is_officer, :officer_position, :approved_at, :approved_by, :created_at, :updated_at)
		RETURNING id`
	stmt, err := repo.db.PrepareNamedContext(ctx, q)
	if err != nil {
		return member.Member{}, errors.Wrap(err, "preparing member insert")
	}
	defer stmt.Close()
	if err = stmt.GetContext(ctx, &row.ID, row); err != nil {
		return member.Member{}, repo.trapUniqueErr(err, "inserting member")
	}
	return row.member(), nil
}

func (repo *memberRepository) QueryMembers(ctx context.Context, filter *member.QueryFilter, ordering []core.DBOrdering) ([]member.Member, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			w.add("full_name ILIKE ? OR school ILIKE ? OR nip LIKE ? OR nuptk LIKE ? OR member_number LIKE ?", val, val, val, val, val)
		}
		if len(filter.Statuses) > 0 {
			w.add("status = ANY(?)", pq.Array(filter.Statuses))
		}
		if filter.IsOfficer != nil {
			w.add("is_officer = ?", *filter.IsOfficer)
		}
		for col, id := range map[string]int{
			"province_id": filter.ProvinceID,
			"regency_id":  filter.RegencyID,
			"district_id": filter.DistrictID,
			"village_id":  filter.VillageID,
		} {
			if id != 0 {
				w.add(col+" = ?", id)
			}
		}
	}

	q := `SELECT ` + memberColumns + ` FROM member` + w.String() + orderBy(ordering, memberOrdering, "id ASC")
	var rows []memberRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying members")
	}
	members := make([]member.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, r.member())
	}
	return members, nil
}

func (repo *memberRepository) getBy(ctx context.Context, col string, val int) (member.Member, error) {
	var row memberRow
	q := `SELECT ` + memberColumns + ` FROM member WHERE ` + col + ` = $1 LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, q, val); err != nil {
		return member.Member{}, trapNoRowsErr(err, member.ErrNotFound, "getting member")
	}
	return row.member(), nil
}

func (repo *memberRepository) GetMember(ctx context.Context, id int) (member.Member, error) {
	return repo.getBy(ctx, "id", id)
}

func (repo *memberRepository) GetMemberByUser(ctx context.Context, userID int) (member.Member, error) {
	if userID == 0 {
		return member.Member{}, member.ErrNotFound
	}
	return repo.getBy(ctx, "user_id", userID)
}

func (repo *memberRepository) UpdateMember(ctx context.Context, m member.Member) (member.Member, error) {
	row := toMemberRow(m)
	q := `UPDATE member SET user_id = :user_id, full_name = :full_name, nip = :nip, nuptk = :nuptk,
			birth_place = :birth_place, birth_date = :birth_date, gender = :gender, phone = :phone, email = :email,
			school = :school, position = :position, address = :address, province_id = :province_id,
			regency_id = :regency_id, district_id = :district_id, village_id = :village_id, photo_path = :photo_path,
			status = :status, member_number = :member_number, rejection_reason = :rejection_reason,
			is_officer = :is_officer, officer_position = :officer_position, approved_at = :approved_at,
			approved_by = :approved_by, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return member.Member{}, repo.trapUniqueErr(err, "updating member")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return member.Member{}, member.ErrNotFound
	}
	return row.member(), nil
}

func (repo *memberRepository) DeleteMembersByID(ctx context.Context, ids ...int) (int, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM member WHERE id = ANY($1)`, pq.Array(intsToInt64(ids)))
	if err != nil {
		return 0, errors.Wrap(err, "deleting members")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting members")
}

func (repo *memberRepository) NextSequence(ctx context.Context, year int) (int, error) {
	var last int
	q := `SELECT COALESCE(MAX(CAST(SPLIT_PART(member_number, '.', 2) AS INTEGER)), 0)
		FROM member WHERE member_number LIKE $1`
	if err := repo.db.GetContext(ctx, &last, q, strconv.Itoa(year)+".%"); err != nil {
		return 0, errors.Wrap(err, "getting last member number")
	}
	return last + 1, nil
}
