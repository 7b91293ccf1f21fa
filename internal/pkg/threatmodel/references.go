package threatmodel

import (
	"fmt"
	"strings"

	"github.com/opendeepwiki/deepresearch/internal/domain"
)

// 可被引用的对象类型，与 schema 中 $defs 的名字一致
const (
	KindTrustZone     = "trust-zone"
	KindActor         = "actor"
	KindComponent     = "component"
	KindDataStore     = "data-store"
	KindDataSet       = "data-set"
	KindDataFlow      = "data-flow"
	KindThreatPersona = "threat-persona"
	KindThreat        = "threat"
	KindControl       = "control"
	KindRisk          = "risk"
)

// 顶层数组字段与其元素类型
var declaringSections = []struct {
	section string
	kind    string
}{
	{"trust_zones", KindTrustZone},
	{"actors", KindActor},
	{"components", KindComponent},
	{"data_stores", KindDataStore},
	{"data_sets", KindDataSet},
	{"data_flows", KindDataFlow},
	{"threat_personas", KindThreatPersona},
	{"threats", KindThreat},
	{"controls", KindControl},
	{"risks", KindRisk},
}

type symbolTable struct {
	byKind map[string]map[string]bool
	all    map[string]string // name -> kind
}

func (t *symbolTable) has(kind, name string) bool {
	return t.byKind[kind][name]
}

// CheckReferences 检查引用完整性：符号名唯一，且每个引用都指向文档内已声明的对应类型对象。
// 结构不符合 schema 的部分直接跳过，交给结构校验报告。
func CheckReferences(doc any) []domain.Violation {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil
	}

	var violations []domain.Violation
	report := func(path, format string, args ...any) {
		violations = append(violations, domain.Violation{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	table := &symbolTable{byKind: make(map[string]map[string]bool), all: make(map[string]string)}
	for _, decl := range declaringSections {
		table.byKind[decl.kind] = make(map[string]bool)
		for i, obj := range objects(root, decl.section) {
			name, ok := obj["symbolic_name"].(string)
			if !ok || name == "" {
				continue
			}
			path := fmt.Sprintf("/%s/%d/symbolic_name", decl.section, i)
			if prev, dup := table.all[name]; dup {
				report(path, "duplicate symbolic name '%s' (already declared as %s)", name, prev)
				continue
			}
			table.all[name] = decl.kind
			table.byKind[decl.kind][name] = true
		}
	}

	expect := func(path, kind string, value any) {
		name, ok := value.(string)
		if !ok || name == "" {
			return
		}
		if !table.has(kind, name) {
			report(path, "reference '%s' does not resolve to a declared %s", name, kind)
		}
	}
	expectEach := func(path, kind string, value any) {
		items, _ := value.([]any)
		for i, item := range items {
			expect(fmt.Sprintf("%s/%d", path, i), kind, item)
		}
	}

	boundaries := make(map[[2]string]bool)
	for i, tb := range objects(root, "trust_boundaries") {
		base := fmt.Sprintf("/trust_boundaries/%d", i)
		expect(base+"/trust_zone_a", KindTrustZone, tb["trust_zone_a"])
		expect(base+"/trust_zone_b", KindTrustZone, tb["trust_zone_b"])
		a, _ := tb["trust_zone_a"].(string)
		b, _ := tb["trust_zone_b"].(string)
		boundaries[[2]string{a, b}] = true
		boundaries[[2]string{b, a}] = true
	}

	for i, c := range objects(root, "components") {
		base := fmt.Sprintf("/components/%d", i)
		expect(base+"/trust_zone", KindTrustZone, c["trust_zone"])
		expect(base+"/parent_component", KindComponent, c["parent_component"])
		if parent, _ := c["parent_component"].(string); parent != "" && parent == c["symbolic_name"] {
			report(base+"/parent_component", "component '%s' cannot be its own parent", parent)
		}
	}

	for i, ds := range objects(root, "data_sets") {
		placements, _ := ds["placements"].([]any)
		for j, p := range placements {
			pm, ok := p.(map[string]any)
			if !ok {
				continue
			}
			expect(fmt.Sprintf("/data_sets/%d/placements/%d/data_store", i, j), KindDataStore, pm["data_store"])
		}
	}

	for i, df := range objects(root, "data_flows") {
		base := fmt.Sprintf("/data_flows/%d", i)
		for _, end := range []string{"source", "destination"} {
			ref, ok := df[end].(map[string]any)
			if !ok {
				continue
			}
			typ, _ := ref["type"].(string)
			kind := NormalizeKind(typ)
			if _, known := table.byKind[kind]; !known {
				report(base+"/"+end+"/type", "unknown object type '%s'", typ)
				continue
			}
			expect(base+"/"+end+"/object", kind, ref["object"])
		}
	}

	for i, th := range objects(root, "threats") {
		base := fmt.Sprintf("/threats/%d", i)
		expect(base+"/threat_persona", KindThreatPersona, th["threat_persona"])
		expectEach(base+"/components_affected", KindComponent, th["components_affected"])
	}

	for i, ctl := range objects(root, "controls") {
		base := fmt.Sprintf("/controls/%d", i)
		expectEach(base+"/threats", KindThreat, ctl["threats"])
		if ref, ok := ctl["trust_boundary"].(map[string]any); ok {
			expect(base+"/trust_boundary/trust_zone_a", KindTrustZone, ref["trust_zone_a"])
			expect(base+"/trust_boundary/trust_zone_b", KindTrustZone, ref["trust_zone_b"])
			a, _ := ref["trust_zone_a"].(string)
			b, _ := ref["trust_zone_b"].(string)
			if a != "" && b != "" && !boundaries[[2]string{a, b}] {
				report(base+"/trust_boundary", "no trust boundary declared between '%s' and '%s'", a, b)
			}
		}
	}

	for i, r := range objects(root, "risks") {
		expectEach(fmt.Sprintf("/risks/%d/threats", i), KindThreat, r["threats"])
	}

	for i, a := range objects(root, "assumptions") {
		topics, _ := a["topics"].([]any)
		for j, t := range topics {
			name, ok := t.(string)
			if !ok || name == "" {
				continue
			}
			if _, declared := table.all[name]; !declared {
				report(fmt.Sprintf("/assumptions/%d/topics/%d", i, j), "topic '%s' does not name any declared object", name)
			}
		}
	}

	return violations
}

// NormalizeKind 把 "#/$defs/data-store"、"data_stores"、"Component" 等写法统一为类型名
func NormalizeKind(typ string) string {
	k := strings.ToLower(strings.TrimSpace(typ))
	k = strings.TrimPrefix(k, "#/$defs/")
	k = strings.ReplaceAll(k, "_", "-")
	k = strings.ReplaceAll(k, " ", "-")
	return strings.TrimSuffix(k, "s")
}

// objects 取顶层数组字段中的对象元素，保持下标与原数组一致
func objects(root map[string]any, section string) []map[string]any {
	items, _ := root[section].([]any)
	out := make([]map[string]any, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]any); ok {
			out[i] = m
		} else {
			out[i] = map[string]any{}
		}
	}
	return out
}

// SymbolicNames 返回某个顶层数组字段中声明的全部符号名
func SymbolicNames(doc any, section string) []string {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	var names []string
	for _, obj := range objects(root, section) {
		if name, ok := obj["symbolic_name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}
