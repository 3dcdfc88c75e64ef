// Package permission はチームの役割から操作権限を解決する。
package permission

import (
	"context"
	"fmt"

	"github.com/hitoshi/jobboard/internal/model"
	"github.com/hitoshi/jobboard/internal/repository"
)

// roleCapabilities は役割ごとの権限。上位の役割は下位の権限を全て含む。
var roleCapabilities = map[model.TeamRole][]model.Capability{
	model.TeamRoleOwner:     {model.CapManageTeam, model.CapManageApplications, model.CapReview, model.CapView},
	model.TeamRoleAdmin:     {model.CapManageTeam, model.CapManageApplications, model.CapReview, model.CapView},
	model.TeamRoleRecruiter: {model.CapManageApplications, model.CapReview, model.CapView},
	model.TeamRoleReviewer:  {model.CapReview, model.CapView},
	model.TeamRoleViewer:    {model.CapView},
}

// CapabilitySet はある雇用者スコープに対するアクターの権限集合。
// ゼロ値は権限なし（スコープ外）を表す。
type CapabilitySet struct {
	Role       model.TeamRole
	EmployerID string
}

// Has は権限を持っているかを判定する。
func (c CapabilitySet) Has(capability model.Capability) bool {
	for _, have := range roleCapabilities[c.Role] {
		if have == capability {
			return true
		}
	}
	return false
}

// Empty はスコープ外（何の権限もない）かを判定する。
func (c CapabilitySet) Empty() bool {
	return len(roleCapabilities[c.Role]) == 0
}

// IsOwner は雇用者本人としての権限かを判定する。
func (c CapabilitySet) IsOwner() bool {
	return c.Role == model.TeamRoleOwner
}

// Capabilities は保持している権限の一覧を返す。
func (c CapabilitySet) Capabilities() []model.Capability {
	return append([]model.Capability(nil), roleCapabilities[c.Role]...)
}

// Require は権限が不足している場合にUNAUTHORIZEDを返す。
func Require(set CapabilitySet, capability model.Capability) error {
	if !set.Has(capability) {
		return model.NewUnauthorizedError(capability)
	}
	return nil
}

// Authorize はリソース単位の認可を行う。
// スコープ外の場合は存在を漏らさないようNOT_FOUNDを返し、
// スコープ内で権限が足りない場合はUNAUTHORIZEDを返す。
func Authorize(set CapabilitySet, capability model.Capability, resource string) error {
	if set.Empty() {
		return model.NewNotFoundError(resource)
	}
	return Require(set, capability)
}

// Resolver はアクターの権限を解決する。
type Resolver struct {
	teams repository.TeamRepository
}

// NewResolver はResolverを生成する。
func NewResolver(teams repository.TeamRepository) *Resolver {
	return &Resolver{teams: teams}
}

// ForEmployer はemployerIDのスコープに対するactorIDの権限を解決する。
// 雇用者本人は全権限、雇用者が所有するチームのアクティブメンバーは役割の権限、
// それ以外は空の集合になる。
func (r *Resolver) ForEmployer(ctx context.Context, actorID, employerID string) (CapabilitySet, error) {
	if actorID == "" || employerID == "" {
		return CapabilitySet{}, nil
	}
	if actorID == employerID {
		return CapabilitySet{Role: model.TeamRoleOwner, EmployerID: employerID}, nil
	}

	member, team, err := r.membership(ctx, actorID)
	if err != nil {
		return CapabilitySet{}, err
	}
	if member == nil || team.OwnerID != employerID {
		return CapabilitySet{}, nil
	}
	return CapabilitySet{Role: member.Role, EmployerID: employerID}, nil
}

// ForJob は求人の所有者のスコープで権限を解決する。
func (r *Resolver) ForJob(ctx context.Context, actorID string, job *model.JobPosting) (CapabilitySet, error) {
	return r.ForEmployer(ctx, actorID, job.OwnerID)
}

// ForTeam はチーム所有者のスコープで権限を解決する。
func (r *Resolver) ForTeam(ctx context.Context, actorID string, team *model.Team) (CapabilitySet, error) {
	return r.ForEmployer(ctx, actorID, team.OwnerID)
}

// Scope はアクターが操作するパイプラインの雇用者スコープを返す。
// チームにアクティブ所属していればチーム所有者、そうでなければアクター自身のスコープ。
func (r *Resolver) Scope(ctx context.Context, actorID string) (CapabilitySet, error) {
	member, team, err := r.membership(ctx, actorID)
	if err != nil {
		return CapabilitySet{}, err
	}
	if member != nil {
		return CapabilitySet{Role: member.Role, EmployerID: team.OwnerID}, nil
	}
	return CapabilitySet{Role: model.TeamRoleOwner, EmployerID: actorID}, nil
}

func (r *Resolver) membership(ctx context.Context, actorID string) (*model.TeamMember, *model.Team, error) {
	member, err := r.teams.FindActiveMembership(ctx, actorID)
	if err != nil {
		return nil, nil, fmt.Errorf("所属チームの取得に失敗しました: %w", err)
	}
	if member == nil {
		return nil, nil, nil
	}
	team, err := r.teams.FindByID(ctx, member.TeamID)
	if err != nil {
		return nil, nil, fmt.Errorf("チームの取得に失敗しました: %w", err)
	}
	if team == nil {
		return nil, nil, nil
	}
	return member, team, nil
}
