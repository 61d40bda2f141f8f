package types

// Role 参与者角色。集合是封闭的，新增角色需要同时补充提示词与默认关键词池。
type Role string

const (
	RoleCraftsman    Role = "craftsman"
	RoleConsumer     Role = "consumer"
	RoleManufacturer Role = "manufacturer"
	RoleDesigner     Role = "designer"
)

var allRoles = []Role{RoleCraftsman, RoleConsumer, RoleManufacturer, RoleDesigner}

var roleDisplayNames = map[Role]string{
	RoleCraftsman:    "传统手艺人",
	RoleConsumer:     "消费者",
	RoleManufacturer: "制造商",
	RoleDesigner:     "设计师",
}

// AllRoles 按固定顺序返回全部角色
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// Valid 是否属于封闭的角色集合
func (r Role) Valid() bool {
	_, ok := roleDisplayNames[r]
	return ok
}

// DisplayName 返回角色的中文名称
func (r Role) DisplayName() string {
	if name, ok := roleDisplayNames[r]; ok {
		return name
	}
	return string(r)
}

func (r Role) String() string { return string(r) }

// ParseRole 把字符串解析为 Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", NewError(ErrInvalidInput, "unknown role: "+s)
	}
	return r, nil
}
