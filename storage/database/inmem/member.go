package inmemdb

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/member"
)

type memberRepository struct {
	db *memberTable
}

var _ member.Repository = (*memberRepository)(nil) // interface compliance check

func NewMemberRepository(db *DB) member.Repository {
	return &memberRepository{db: db.member}
}

func (repo *memberRepository) query() []member.Member {
	members := make([]member.Member, 0, len(repo.db.table))
	for _, m := range repo.db.table {
		members = append(members, *m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

func (repo *memberRepository) numberTaken(m member.Member) bool {
	if m.MemberNumber == "" {
		return false
	}
	for _, other := range repo.db.table {
		if other.ID != m.ID && other.MemberNumber == m.MemberNumber {
			return true
		}
	}
	return false
}

func (repo *memberRepository) CreateMember(ctx context.Context, m member.Member) (member.Member, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.numberTaken(m) {
		return member.Member{}, member.ErrNumberTaken
	}
	repo.db.pk++
	m.ID = repo.db.pk
	repo.db.table[m.ID] = &m
	return m, nil
}

func (repo *memberRepository) QueryMembers(ctx context.Context, filter *member.QueryFilter, ordering []core.DBOrdering) ([]member.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	members := make([]member.Member, 0)
	for _, m := range repo.query() {
		if filter.Match(m) {
			members = append(members, m)
		}
	}
	sortMembers(members, ordering)
	return members, nil
}

func sortMembers(members []member.Member, ordering []core.DBOrdering) {
	less := func(a, b member.Member, field string) (bool, bool) {
		switch field {
		case "full_name":
			return a.FullName < b.FullName, a.FullName == b.FullName
		case "member_number":
			return a.MemberNumber < b.MemberNumber, a.MemberNumber == b.MemberNumber
		case "school":
			return a.School < b.School, a.School == b.School
		case "status":
			return a.Status < b.Status, a.Status == b.Status
		case "officer_position":
			return a.OfficerPosition < b.OfficerPosition, a.OfficerPosition == b.OfficerPosition
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		case "approved_at":
			return a.ApprovedAt.Before(b.ApprovedAt), a.ApprovedAt.Equal(b.ApprovedAt)
		}
		return false, true
	}
	sort.SliceStable(members, func(i, j int) bool {
		for _, ord := range ordering {
			lt, eq := less(members[i], members[j], ord.Field)
			if eq {
				continue
			}
			return lt == ord.Ascending
		}
		return false
	})
}

func (repo *memberRepository) GetMember(ctx context.Context, id int) (member.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.table[id]; ok {
		return *m, nil
	}
	return member.Member{}, member.ErrNotFound
}

func (repo *memberRepository) GetMemberByUser(ctx context.Context, userID int) (member.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, m := range repo.query() {
		if userID != 0 && m.UserID == userID {
			return m, nil
		}
	}
	return member.Member{}, member.ErrNotFound
}

func (repo *memberRepository) UpdateMember(ctx context.Context, m member.Member) (member.Member, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[m.ID]; !ok {
		return member.Member{}, member.ErrNotFound
	}
	if repo.numberTaken(m) {
		return member.Member{}, member.ErrNumberTaken
	}
	repo.db.table[m.ID] = &m
	return m, nil
}

func (repo *memberRepository) DeleteMembersByID(ctx context.Context, ids ...int) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			delete(repo.db.table, id)
			n++
		}
	}
	return n, nil
}

func (repo *memberRepository) NextSequence(ctx context.Context, year int) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	prefix := strconv.Itoa(year) + "."
	var max int
	for _, m := range repo.db.table {
		if !strings.HasPrefix(m.MemberNumber, prefix) {
			continue
		}
		if _, seq, err := member.ParseNumber(m.MemberNumber); err == nil && seq > max {
			max = seq
		}
	}
	return max + 1, nil
}
