package ui

import (
	"fmt"
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/yaricom/goNEAT/v4/neat/genetics"
	"github.com/yaricom/goNEAT/v4/neat/network"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/neural"
	"github.com/pthm-cable/forge/sim"
)

// InspectorData holds all the data needed to render the inspector panel.
type InspectorData struct {
	Info   sim.AgentInfo
	Genome *genetics.Genome // nil for brainless agents
}

// Inspector renders the agent inspection panel.
type Inspector struct {
	renderer *Renderer
	x, y     int32
	width    int32
	sections []SectionDescriptor
}

// NewInspector creates a new inspector panel.
func NewInspector(x, y, width int32) *Inspector {
	return &Inspector{
		renderer: NewRenderer(),
		x:        x,
		y:        y,
		width:    width,
		sections: agentSections(),
	}
}

// SetPosition updates the inspector position.
func (ins *Inspector) SetPosition(x, y int32) {
	ins.x = x
	ins.y = y
}

func info(d any) *sim.AgentInfo { return &d.(*InspectorData).Info }

func agentSections() []SectionDescriptor {
	motor := func(slot int) func(any) float32 {
		return func(d any) float32 { return info(d).Motor[slot] }
	}
	hasBrain := func(d any) bool { return info(d).HasBrain }

	return []SectionDescriptor{
		{
			Title: "State",
			Fields: []FieldDescriptor{
				{
					Label:     "Energy",
					Widget:    WidgetEnergyBar,
					Getter:    func(d any) float32 { return info(d).Phys.Energy },
					MaxGetter: func(d any) float32 { return info(d).Phys.MaxEnergy },
				},
				{
					Label:     "Health",
					Widget:    WidgetEnergyBar,
					Getter:    func(d any) float32 { return info(d).Phys.Health },
					MaxGetter: func(d any) float32 { return info(d).Phys.MaxHealth },
				},
				{Label: "Hunger", Widget: WidgetBar, Getter: func(d any) float32 { return info(d).Phys.Hunger }},
				{Label: "Age", Widget: WidgetText, Format: "%.1fs", Getter: func(d any) float32 { return info(d).Phys.Age }},
				{Label: "Speed", Widget: WidgetText, Format: "%.2f", Getter: func(d any) float32 {
					v := info(d).Vel
					return length(v.X, v.Z)
				}},
				{Label: "Height", Widget: WidgetText, Format: "%.1f", Getter: func(d any) float32 { return info(d).Pos.Y }},
			},
		},
		{
			Title: "Lineage",
			Fields: []FieldDescriptor{
				{Label: "Gen", Widget: WidgetText, TextGetter: func(d any) string {
					return fmt.Sprintf("%d", info(d).Lineage.Generation)
				}},
				{Label: "Parents", Widget: WidgetText, TextGetter: func(d any) string {
					l := info(d).Lineage
					switch {
					case l.ParentA == 0:
						return "founder"
					case l.ParentB == 0:
						return fmt.Sprintf("%d", l.ParentA)
					}
					return fmt.Sprintf("%d x %d", l.ParentA, l.ParentB)
				}},
				{Label: "Clade", Widget: WidgetText, TextGetter: func(d any) string {
					return fmt.Sprintf("%d", info(d).Lineage.Clade)
				}},
				{Label: "Children", Widget: WidgetText, TextGetter: func(d any) string {
					return fmt.Sprintf("%d", info(d).Org.Children)
				}},
				{Label: "Kills", Widget: WidgetText, TextGetter: func(d any) string {
					return fmt.Sprintf("%d", info(d).Org.KillCount)
				}},
				{Label: "Flags", Widget: WidgetText, TextGetter: func(d any) string {
					l := info(d).Lineage
					s := ""
					if l.Hybrid {
						s += "hybrid "
					}
					if l.Sterile {
						s += "sterile"
					}
					if s == "" {
						return "-"
					}
					return s
				}},
			},
		},
		{
			Title:   "Motor",
			Visible: hasBrain,
			Fields: []FieldDescriptor{
				{Label: "Turn", Widget: WidgetCenteredBar, Range: CenteredRange(), Getter: motor(neural.MotorTurn)},
				{Label: "Speed", Widget: WidgetBar, Getter: motor(neural.MotorSpeed)},
				{Label: "Attack", Widget: WidgetBar, Getter: motor(neural.MotorAttack)},
				{Label: "Flee", Widget: WidgetBar, Getter: motor(neural.MotorFlee)},
				{Label: "Eat", Widget: WidgetBar, Getter: motor(neural.MotorEat)},
				{Label: "Social", Widget: WidgetCenteredBar, Range: CenteredRange(), Getter: motor(neural.MotorSocial)},
				{Label: "Rest", Widget: WidgetBar, Getter: motor(neural.MotorRest)},
			},
		},
		{
			Title: "Memory",
			Fields: []FieldDescriptor{
				{Label: "Fear", Widget: WidgetBar, Getter: func(d any) float32 { return info(d).Memory.Fear }},
				{Label: "Curiosity", Widget: WidgetBar, Getter: func(d any) float32 { return info(d).Memory.Curiosity }},
				{Label: "Aggress.", Widget: WidgetBar, Getter: func(d any) float32 { return info(d).Memory.Aggression }},
			},
		},
		{
			Title: "Traits",
			Fields: []FieldDescriptor{
				trait("Size", components.TraitSize),
				trait("Speed", components.TraitSpeed),
				trait("Vision", components.TraitVision),
				trait("Metab.", components.TraitMetabolism),
				trait("Fertility", components.TraitFertility),
			},
		},
	}
}

// trait shows an expressed multiplier on a [0.5, 1.5] bar.
func trait(label string, t components.Trait) FieldDescriptor {
	return FieldDescriptor{
		Label:  label,
		Widget: WidgetBar,
		Getter: func(d any) float32 {
			tr := info(d).Traits
			return tr.Express(t) - 0.5
		},
	}
}

// Draw renders the inspector panel and returns the bottom edge.
func (ins *Inspector) Draw(data *InspectorData) int32 {
	r := ins.renderer
	padding := r.Theme.Padding
	contentWidth := ins.width - padding*2

	r.DrawPanel(ins.x, ins.y, ins.width, ins.height(data))
	y := ins.y + padding

	a := &data.Info
	title := fmt.Sprintf("#%d %s", a.ID, a.Species)
	rl.DrawText(title, ins.x+padding, y, 18, rl.White)
	y += 24

	for _, sd := range ins.sections {
		y = r.DrawSection(ins.x+padding, y, sd, data, contentWidth)
	}

	if data.Genome != nil {
		y = r.DrawSectionHeader(ins.x+padding, y, "Network")
		y = r.DrawLabelValue(ins.x+padding, y, "Nodes", fmt.Sprintf("%d", a.Nodes), contentWidth)
		y = r.DrawLabelValue(ins.x+padding, y, "Links", fmt.Sprintf("%d", a.Links), contentWidth)
		drawBrainGraph(ins.x+padding, y+2, contentWidth, 120, data.Genome)
		y += 128
	}
	return y
}

// height estimates the panel height for data.
func (ins *Inspector) height(data *InspectorData) int32 {
	t := ins.renderer.Theme
	h := t.Padding*2 + 24
	for _, sd := range ins.sections {
		if sd.Visible != nil && !sd.Visible(data) {
			continue
		}
		h += t.LineHeight + 4 + int32(len(sd.Fields))*(t.LineHeight+2)
	}
	if data.Genome != nil {
		h += t.LineHeight*3 + 128
	}
	return h
}

// drawBrainGraph draws the network with inputs on the left, outputs on the
// right and hidden nodes in between.
func drawBrainGraph(x, y, width, height int32, genome *genetics.Genome) {
	rl.DrawRectangle(x, y, width, height, rl.Color{R: 30, G: 35, B: 40, A: 255})

	var inputs, outputs, hidden []*network.NNode
	for _, node := range genome.Nodes {
		switch node.NeuronType {
		case network.InputNeuron, network.BiasNeuron:
			inputs = append(inputs, node)
		case network.OutputNeuron:
			outputs = append(outputs, node)
		case network.HiddenNeuron:
			hidden = append(hidden, node)
		}
	}

	pos := make(map[int]rl.Vector2, len(genome.Nodes))
	const padding = float32(8)
	inner := float32(height) - padding*2
	column := func(nodes []*network.NNode, cx float32) {
		step := inner / float32(max(len(nodes), 1))
		for i, n := range nodes {
			pos[n.Id] = rl.Vector2{X: cx, Y: float32(y) + padding + step*(float32(i)+0.5)}
		}
	}
	column(inputs, float32(x)+padding)
	column(outputs, float32(x+width)-padding)
	if len(hidden) > 0 {
		const perCol = 8
		cols := (len(hidden) + perCol - 1) / perCol
		colWidth := (float32(width) - padding*4) / float32(cols+1)
		for i, n := range hidden {
			col, row := i/perCol, i%perCol
			pos[n.Id] = rl.Vector2{
				X: float32(x) + padding*2 + colWidth*float32(col+1),
				Y: float32(y) + padding + inner*(float32(row)+0.5)/perCol,
			}
		}
	}

	for _, gene := range genome.Genes {
		if !gene.IsEnabled || gene.Link == nil {
			continue
		}
		from, ok1 := pos[gene.Link.InNode.Id]
		to, ok2 := pos[gene.Link.OutNode.Id]
		if !ok1 || !ok2 {
			continue
		}
		w := gene.Link.ConnectionWeight
		alpha := uint8(min(255, int(absf64(w)*100)+50))
		c := rl.Color{R: 100, G: 200, B: 100, A: alpha}
		if w < 0 {
			c = rl.Color{R: 200, G: 100, B: 100, A: alpha}
		}
		rl.DrawLineV(from, to, c)
	}

	dot := func(nodes []*network.NNode, c rl.Color) {
		for _, n := range nodes {
			rl.DrawCircleV(pos[n.Id], 3, c)
		}
	}
	dot(inputs, rl.Color{R: 100, G: 150, B: 255, A: 255})
	dot(outputs, rl.Color{R: 255, G: 180, B: 100, A: 255})
	dot(hidden, rl.Color{R: 180, G: 180, B: 180, A: 255})
}

func length(x, z float32) float32 {
	return float32(math.Sqrt(float64(x*x + z*z)))
}

func absf64(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
