package conversation

import (
	"math/rand/v2"
	"slices"

	"github.com/BaSui01/craftmeet/types"
)

// Speaker 参与发言排序所需的最小信息
type Speaker interface {
	ID() string
	CurrentRole() types.Role
}

// canonicalPattern 固定发言顺序
var canonicalPattern = []types.Role{
	types.RoleCraftsman,
	types.RoleConsumer,
	types.RoleManufacturer,
	types.RoleConsumer,
	types.RoleDesigner,
	types.RoleConsumer,
}

// TurnOrder 返回一轮发言的顺序（speakers 的下标）。
// 满足固定顺序条件时结果稳定，否则为 rng 生成的随机排列。
func TurnOrder[S Speaker](speakers []S, rng *rand.Rand) []int {
	if order, ok := canonicalOrder(speakers); ok {
		return order
	}
	order := make([]int, len(speakers))
	for i := range order {
		order[i] = i
	}
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return order
}

func canonicalOrder[S Speaker](speakers []S) ([]int, bool) {
	byRole := make(map[types.Role][]int)
	for i, s := range speakers {
		r := s.CurrentRole()
		byRole[r] = append(byRole[r], i)
	}

	need := make(map[types.Role]int)
	for _, r := range canonicalPattern {
		need[r]++
	}
	for r, n := range need {
		if len(byRole[r]) < n {
			return nil, false
		}
	}

	used := make([]bool, len(speakers))
	order := make([]int, 0, len(speakers))
	next := make(map[types.Role]int)
	for _, r := range canonicalPattern {
		idx := byRole[r][next[r]]
		next[r]++
		used[idx] = true
		order = append(order, idx)
	}
	for i := range speakers {
		if !used[i] {
			order = append(order, i)
		}
	}
	return order, true
}

// Derange 为每个位置分配一个不同于 current[i] 的角色。
// 先对角色多重集合随机洗牌，再逐个修复不动点：优先与其他位置交换，
// 无法交换时按角色顺序选第一个不同的角色。
func Derange(current []types.Role, rng *rand.Rand) []types.Role {
	assigned := slices.Clone(current)
	if rng != nil {
		rng.Shuffle(len(assigned), func(i, j int) { assigned[i], assigned[j] = assigned[j], assigned[i] })
	}

	for i := range assigned {
		if assigned[i] != current[i] {
			continue
		}
		swapped := false
		for j := range assigned {
			if j == i || assigned[j] == current[i] || assigned[i] == current[j] {
				continue
			}
			assigned[i], assigned[j] = assigned[j], assigned[i]
			swapped = true
			break
		}
		if !swapped {
			assigned[i] = firstOtherRole(current[i])
		}
	}
	return assigned
}

func firstOtherRole(r types.Role) types.Role {
	for _, candidate := range types.AllRoles() {
		if candidate != r {
			return candidate
		}
	}
	return r
}
