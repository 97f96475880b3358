package classify

import "strings"

// Result 是依据进程名推导出的展示信息。
type Result struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// DefaultIcon 在标签没有登记图标时使用。
const DefaultIcon = "terminal"

type rule struct {
	token string
	label string
}

// 规则自上而下匹配，首个命中生效。
// 框架名必须排在可能包含它们的通用运行时之前，否则会被遮蔽。
var rules = []rule{
	{"next", "Next.js"},
	{"vite", "Vite"},
	{"astro", "Astro"},
	{"remix", "Remix"},
	{"nuxt", "Nuxt"},
	{"svelte", "Svelte"},
	{"webpack", "Webpack"},
	{"parcel", "Parcel"},
	{"esbuild", "esbuild"},
	{"turbo", "Turbopack"},
	{"node", "Node.js"},
	{"python", "Python"},
	{"ruby", "Ruby"},
	{"php", "PHP"},
	{"go", "Go"},
	{"rust", "Rust"},
	{"java", "Java"},
	{"controlce", "Control Center"},
}

// 标签到图标键的映射，键按小写登记。
var icons = map[string]string{
	"next.js":        "n.square",
	"vite":           "bolt.fill",
	"astro":          "sparkles",
	"remix":          "arrow.triangle.2.circlepath",
	"nuxt":           "leaf.fill",
	"svelte":         "flame.fill",
	"webpack":        "shippingbox.fill",
	"parcel":         "cube.fill",
	"esbuild":        "hare.fill",
	"turbopack":      "speedometer",
	"node.js":        "hexagon.fill",
	"python":         "chevron.left.forwardslash.chevron.right",
	"ruby":           "diamond.fill",
	"php":            "server.rack",
	"go":             "g.circle.fill",
	"rust":           "gearshape.fill",
	"java":           "cup.and.saucer.fill",
	"control center": "switch.2",
}

// Process 对进程名做大小写不敏感的子串匹配，推导框架标签与图标。
// 未命中任何规则时标签回退为进程名本身。纯函数，可并发调用。
func Process(name string) Result {
	lower := strings.ToLower(name)
	for _, r := range rules {
		if strings.Contains(lower, r.token) {
			return Result{Label: r.label, Icon: IconFor(r.label)}
		}
	}
	return Result{Label: name, Icon: DefaultIcon}
}

// IconFor 返回标签对应的图标键，未登记的标签使用默认图标。
func IconFor(label string) string {
	if icon, ok := icons[strings.ToLower(label)]; ok {
		return icon
	}
	return DefaultIcon
}
