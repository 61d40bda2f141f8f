package participant

import (
	"fmt"

	"github.com/BaSui01/craftmeet/types"
)

// persona 角色人设模板
type persona struct {
	name       string
	age        int
	background string
}

var personas = map[types.Role][]persona{
	types.RoleCraftsman: {
		{"张师傅", 58, "从事剪纸与木版年画四十年，省级非遗传承人"},
		{"刘师傅", 52, "苏绣世家第三代，擅长双面绣"},
		{"赵师傅", 63, "景德镇青花瓷手工艺人，熟悉传统窑烧工艺"},
	},
	types.RoleConsumer: {
		{"李女士", 32, "互联网公司产品经理，喜欢收藏有故事的文创小物"},
		{"小周", 24, "在校研究生，常在社交平台分享国潮穿搭"},
		{"孙阿姨", 55, "退休教师，逢年过节喜欢挑选有文化寓意的礼物"},
	},
	types.RoleManufacturer: {
		{"陈总", 46, "文创礼品工厂负责人，管理注塑与激光雕刻产线"},
		{"黄经理", 39, "柔性供应链负责人，擅长小批量快反生产"},
	},
	types.RoleDesigner: {
		{"王设计师", 35, "独立设计工作室主理人，专注传统纹样的现代转译"},
		{"林设计师", 29, "品牌视觉设计师，擅长包装与插画"},
	},
}

// DefaultRoster 按角色人数生成默认参会者，顺序为手艺人、消费者、制造商、设计师。
// ID 形如 craftsman_1；人数超过模板时名字追加序号。
func DefaultRoster(counts map[types.Role]int) []Profile {
	var roster []Profile
	for _, role := range types.AllRoles() {
		pool := personas[role]
		for i := range counts[role] {
			tmpl := pool[i%len(pool)]
			name := tmpl.name
			if i >= len(pool) {
				name = fmt.Sprintf("%s%d", tmpl.name, i/len(pool)+1)
			}
			roster = append(roster, Profile{
				ID:         fmt.Sprintf("%s_%d", role, i+1),
				Name:       name,
				Role:       role,
				Age:        tmpl.age,
				Background: tmpl.background,
			})
		}
	}
	return roster
}
