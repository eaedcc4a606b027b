package member

import (
	"context"
	"io"
	"net/mail"
	"time"

	"github.com/jinzhu/now"
	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/photo"
	"github.com/pgri-okutimur/anggota/core/region"
	"github.com/pgri-okutimur/anggota/core/setting"
	"github.com/pgri-okutimur/anggota/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("member not found")
	ErrNumberTaken      = errors.New("member number already taken")
	ErrPermissionDenied = errors.New("only admins can change officer fields")
	ErrAlreadyApproved  = errors.New("member is already approved")
	ErrNotPending       = errors.New("only pending registrations can be rejected")
	ErrNotApproved      = errors.New("member is not approved yet")

	nowFunc = time.Now

	numberAttempts = 5
)

type (
	Repository interface {
		CreateMember(ctx context.Context, m Member) (Member, error)
		// QueryMembers applies AND operation on available QueryFilter fields.
		QueryMembers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Member, error)
		GetMember(ctx context.Context, id int) (Member, error)
		GetMemberByUser(ctx context.Context, userID int) (Member, error)
		// UpdateMember returns ErrNumberTaken when m.MemberNumber is used by another member.
		UpdateMember(ctx context.Context, m Member) (Member, error)
		DeleteMembersByID(ctx context.Context, ids ...int) (int, error)
		// NextSequence returns the next free member number sequence of year.
		NextSequence(ctx context.Context, year int) (int, error)
	}

	Service interface {
		Create(ctx context.Context, nm NewMember) (Member, error)
		// Register creates a pending member along with its member account.
		Register(ctx context.Context, reg Registration) (Member, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Member, error)
		Officers(ctx context.Context) ([]Member, error)
		GetByID(ctx context.Context, id int) (Member, error)
		GetByUser(ctx context.Context, userID int) (Member, error)
		Update(ctx context.Context, m Member, um UpdateMember, by user.User) (Member, error)
		Approve(ctx context.Context, m Member, by user.User) (Member, error)
		Reject(ctx context.Context, m Member, rej Rejection) (Member, error)
		Delete(ctx context.Context, ids ...int) error
		SetPhoto(ctx context.Context, m Member, r io.Reader) (Member, error)
		Card(ctx context.Context, m Member) (Card, error)
	}

	service struct {
		repo       Repository
		userSvc    user.Service
		regionSvc  region.Service
		settingSvc setting.Service
		photos     photo.Store
		versions   *photo.VersionCache
		mailSvc    core.EmailService
		conf       *core.Config
	}
)

var _ Service = (*service)(nil) // interface compliance check

type Deps struct {
	Repo       Repository
	UserSvc    user.Service
	RegionSvc  region.Service
	SettingSvc setting.Service
	Photos     photo.Store
	Versions   *photo.VersionCache
	MailSvc    core.EmailService
	Conf       *core.Config
}

func NewService(deps Deps) Service {
	svc := newService(deps)
	return &svc
}

func newService(deps Deps) service {
	versions := deps.Versions
	if versions == nil {
		versions = photo.NewVersionCache()
	}
	return service{
		repo:       deps.Repo,
		userSvc:    deps.UserSvc,
		regionSvc:  deps.RegionSvc,
		settingSvc: deps.SettingSvc,
		photos:     deps.Photos,
		versions:   versions,
		mailSvc:    deps.MailSvc,
		conf:       deps.Conf,
	}
}

func (svc *service) validate(ctx context.Context, s interface{}, loc region.Selection) error {
	if err := core.Validate.Struct(s); err != nil {
		return err
	}
	return svc.regionSvc.ValidateSelection(ctx, loc)
}

func (svc *service) newMember(nm NewMember) Member {
	birthDate, _ := time.Parse(birthDateLayout, nm.BirthDate)
	ts := nowFunc().UTC()
	return Member{
		FullName:   nm.FullName,
		NIP:        nm.NIP,
		NUPTK:      nm.NUPTK,
		BirthPlace: nm.BirthPlace,
		BirthDate:  birthDate,
		Gender:     nm.Gender,
		Phone:      nm.Phone,
		Email:      nm.Email,
		School:     nm.School,
		Position:   nm.Position,
		Address:    nm.Address,
		Location:   nm.Location(),
		Status:     StatusPending,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
}

// Create stores a pending member without a login account.
func (svc *service) Create(ctx context.Context, nm NewMember) (Member, error) {
	nm.Clean()
	if err := svc.validate(ctx, nm, nm.Location()); err != nil {
		return Member{}, err
	}
	m, err := svc.repo.CreateMember(ctx, svc.newMember(nm))
	if err != nil {
		return Member{}, errors.Wrap(err, "creating member")
	}
	return svc.present(m), nil
}

func (svc *service) Register(ctx context.Context, reg Registration) (Member, error) {
	reg.Clean()
	if err := svc.validate(ctx, reg, reg.Location()); err != nil {
		return Member{}, err
	}

	usr, err := svc.userSvc.Create(ctx, user.NewUser{
		Name:            reg.FullName,
		Username:        reg.Username,
		Email:           reg.Email,
		Password:        reg.Password,
		PasswordConfirm: reg.PasswordConfirm,
		Roles:           []string{user.RoleMember},
	})
	if err != nil {
		return Member{}, err
	}

	m := svc.newMember(reg.NewMember)
	m.UserID = usr.ID
	if m, err = svc.repo.CreateMember(ctx, m); err != nil {
		_ = svc.userSvc.Delete(ctx, usr.ID)
		return Member{}, errors.Wrap(err, "creating member")
	}

	svc.sendMail(m, "Pendaftaran anggota diterima", "member_registered", nil)
	return svc.present(m), nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Member, error) {
	if filter != nil {
		filter.Clean()
	}
	members, err := svc.repo.QueryMembers(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying members")
	}
	for i := range members {
		members[i] = svc.present(members[i])
	}
	return members, nil
}

// Officers returns the approved officers, for the public site.
func (svc *service) Officers(ctx context.Context) ([]Member, error) {
	filter := &QueryFilter{Statuses: []string{StatusApproved}, IsOfficer: core.BoolPtr(true)}
	return svc.Query(ctx, filter, []core.DBOrdering{{Field: "officer_position", Ascending: true}, {Field: "full_name", Ascending: true}})
}

func (svc *service) GetByID(ctx context.Context, id int) (Member, error) {
	m, err := svc.repo.GetMember(ctx, id)
	if err != nil {
		return Member{}, err
	}
	return svc.present(m), nil
}

func (svc *service) GetByUser(ctx context.Context, userID int) (Member, error) {
	m, err := svc.repo.GetMemberByUser(ctx, userID)
	if err != nil {
		return Member{}, err
	}
	return svc.present(m), nil
}

// Update applies um on m. Officer fields may only be changed by admins.
func (svc *service) Update(ctx context.Context, m Member, um UpdateMember, by user.User) (Member, error) {
	if um.HasAdminFields() && !by.IsAdmin() {
		return Member{}, ErrPermissionDenied
	}
	um.Clean(m)
	if err := svc.validate(ctx, um, um.Location()); err != nil {
		return Member{}, err
	}

	m.FullName = um.FullName
	m.NIP = um.NIP
	m.NUPTK = um.NUPTK
	m.BirthPlace = um.BirthPlace
	if um.BirthDate != "" {
		m.BirthDate, _ = time.Parse(birthDateLayout, um.BirthDate)
	}
	m.Gender = um.Gender
	m.Phone = um.Phone
	m.Email = um.Email
	m.School = um.School
	m.Position = um.Position
	m.Address = um.Address
	m.Location = um.Location()
	if um.IsOfficer != nil {
		m.IsOfficer = *um.IsOfficer
		if !m.IsOfficer {
			m.OfficerPosition = ""
		}
	}
	if um.OfficerPosition != nil && m.IsOfficer {
		m.OfficerPosition = *um.OfficerPosition
	}
	m.UpdatedAt = nowFunc().UTC()

	m, err := svc.repo.UpdateMember(ctx, m)
	if err != nil {
		return Member{}, errors.Wrap(err, "updating member")
	}
	return svc.present(m), nil
}

// Approve assigns a member number and notifies the member.
func (svc *service) Approve(ctx context.Context, m Member, by user.User) (Member, error) {
	if m.IsApproved() {
		return Member{}, core.NewValidationError(ErrAlreadyApproved)
	}

	approvedAt := nowFunc().UTC()
	m.Status = StatusApproved
	m.RejectionReason = ""
	m.ApprovedAt = approvedAt
	m.ApprovedBy = by.ID
	m.UpdatedAt = approvedAt

	keepNumber := m.MemberNumber != "" // re-approval keeps the number
	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		if !keepNumber {
			seq, err := svc.repo.NextSequence(ctx, approvedAt.Year())
			if err != nil {
				return Member{}, errors.Wrap(err, "getting next member number")
			}
			m.MemberNumber = FormatNumber(approvedAt.Year(), seq)
		}

		var updated Member
		updated, err = svc.repo.UpdateMember(ctx, m)
		if err == nil {
			m = updated
			break
		}
		if errors.Cause(err) != ErrNumberTaken || keepNumber {
			return Member{}, errors.Wrap(err, "approving member")
		}
	}
	if err != nil {
		return Member{}, errors.Wrap(err, "approving member")
	}

	svc.sendMail(m, "Keanggotaan disetujui", "member_approved", map[string]interface{}{
		"MemberNumber": m.MemberNumber,
	})
	return svc.present(m), nil
}

func (svc *service) Reject(ctx context.Context, m Member, rej Rejection) (Member, error) {
	rej.Reason = core.CleanString(rej.Reason)
	if err := core.Validate.Struct(rej); err != nil {
		return Member{}, err
	}
	if m.Status != StatusPending {
		return Member{}, core.NewValidationError(ErrNotPending)
	}

	m.Status = StatusRejected
	m.RejectionReason = rej.Reason
	m.UpdatedAt = nowFunc().UTC()
	m, err := svc.repo.UpdateMember(ctx, m)
	if err != nil {
		return Member{}, errors.Wrap(err, "rejecting member")
	}

	svc.sendMail(m, "Pendaftaran anggota ditolak", "member_rejected", map[string]interface{}{
		"Reason": m.RejectionReason,
	})
	return svc.present(m), nil
}

// Delete removes the members and their photos.
func (svc *service) Delete(ctx context.Context, ids ...int) error {
	var photos []string
	for _, id := range ids {
		if m, err := svc.repo.GetMember(ctx, id); err == nil && m.PhotoPath != "" {
			photos = append(photos, m.PhotoPath)
		}
	}
	if _, err := svc.repo.DeleteMembersByID(ctx, ids...); err != nil {
		return errors.Wrap(err, "deleting members")
	}
	for _, p := range photos {
		_ = svc.photos.Delete(p)
	}
	for _, id := range ids {
		svc.versions.Forget(id)
	}
	return nil
}

// SetPhoto replaces the member's photo and invalidates its URL.
func (svc *service) SetPhoto(ctx context.Context, m Member, r io.Reader) (Member, error) {
	p, err := svc.photos.Save(r)
	if err != nil {
		return Member{}, err
	}

	old := m.PhotoPath
	m.PhotoPath = p
	m.UpdatedAt = nowFunc().UTC()
	if m, err = svc.repo.UpdateMember(ctx, m); err != nil {
		_ = svc.photos.Delete(p)
		return Member{}, errors.Wrap(err, "saving member photo")
	}
	if old != "" && old != p {
		_ = svc.photos.Delete(old)
	}
	svc.versions.Bump(m.ID)
	return svc.present(m), nil
}

// Card returns the printable card of an approved member. Cards are valid until the end of the year.
func (svc *service) Card(ctx context.Context, m Member) (Card, error) {
	if !m.IsApproved() {
		return Card{}, core.NewValidationError(ErrNotApproved)
	}

	names, err := svc.regionSvc.Names(ctx, m.Location)
	if err != nil {
		return Card{}, errors.Wrap(err, "resolving member location")
	}
	settings, err := svc.settingSvc.Get(ctx)
	if err != nil {
		return Card{}, err
	}

	issuedAt := nowFunc().UTC()
	m = svc.present(m)
	return Card{
		MemberNumber: m.MemberNumber,
		FullName:     m.FullName,
		NIP:          m.NIP,
		NUPTK:        m.NUPTK,
		BirthPlace:   m.BirthPlace,
		BirthDate:    m.BirthDate,
		School:       m.School,
		Address:      m.Address,
		Village:      names[region.TierVillage],
		District:     names[region.TierDistrict],
		Regency:      names[region.TierRegency],
		Province:     names[region.TierProvince],
		PhotoURL:     m.PhotoURL,
		ChapterName:  svc.conf.ChapterName,
		Footer:       settings.CardFooter,
		IssuedAt:     issuedAt,
		ValidUntil:   now.With(issuedAt).EndOfYear(),
	}, nil
}

// present fills the computed fields of m.
func (svc *service) present(m Member) Member {
	if m.PhotoPath != "" {
		m.PhotoURL = photo.VersionedURL(svc.photos.URL(m.PhotoPath), svc.versions.Version(m.ID, m.UpdatedAt))
	} else {
		m.PhotoURL = ""
	}
	return m
}

func (svc *service) sendMail(m Member, subject, tmpl string, data map[string]interface{}) {
	if m.Email == "" {
		return
	}
	if data == nil {
		data = make(map[string]interface{})
	}
	data["Name"] = m.FullName
	svc.mailSvc.SendMessages(memberMessage(m, subject, tmpl, data))
}

func memberMessage(m Member, subject, tmpl string, data map[string]interface{}) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: m.FullName, Address: m.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: data,
	}
}
