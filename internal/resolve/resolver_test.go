package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/p4grid/internal/bag"
	"github.com/vk/p4grid/internal/registry"
	"github.com/vk/p4grid/internal/schema"
)

// testRegistry registers dummy defaults for the kinds resolution touches.
func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.RegisterDefault(schema.KindSwitchNode, "fakeswitch", func() {})
	reg.RegisterComponent(schema.KindSwitchNode, "altswitch", func() {})
	reg.RegisterDefault(schema.KindController, "fakectl", func() {})
	reg.RegisterComponent(schema.KindController, "altctl", func() {})
	return reg
}

func testDoc(switches map[string]bag.Bag, hosts []string, links []schema.RawLink) *schema.Document {
	hostMap := make(map[string]schema.RawHost, len(hosts))
	for _, h := range hosts {
		hostMap[h] = schema.RawHost{Name: h, Opts: bag.New()}
	}
	if switches == nil {
		switches = map[string]bag.Bag{}
	}
	return &schema.Document{
		Program: "main.p4",
		Topology: &schema.TopologySection{
			AssignmentStrategy: "mixed",
			Default:            bag.New(),
			Hosts:              hostMap,
			Switches:           switches,
			Links:              links,
		},
	}
}

func TestResolveRequiresTopology(t *testing.T) {
	_, err := Resolve(context.Background(), &schema.Document{}, testRegistry(t), Env{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestPortDefaults(t *testing.T) {
	doc := testDoc(map[string]bag.Bag{"s1": bag.New(), "s2": bag.New()}, nil, nil)

	res, err := Resolve(context.Background(), doc, testRegistry(t), Env{})
	require.NoError(t, err)
	require.Len(t, res.Switches, 2)

	assert.Equal(t, "s1", res.Switches[0].Name)
	assert.Equal(t, 9090, res.Switches[0].ThriftPort)
	assert.Equal(t, 9559, res.Switches[0].GRPCPort)
	assert.Equal(t, 9091, res.Switches[1].ThriftPort)
	assert.Equal(t, 9560, res.Switches[1].GRPCPort)
}

func TestExplicitPortAdvancesCounter(t *testing.T) {
	s1 := bag.New()
	s1.Set("opts", cty.ObjectVal(map[string]cty.Value{
		"thrift_port": cty.NumberIntVal(9100),
	}))
	doc := testDoc(map[string]bag.Bag{"s1": s1, "s2": bag.New()}, nil, nil)

	res, err := Resolve(context.Background(), doc, testRegistry(t), Env{})
	require.NoError(t, err)

	assert.Equal(t, 9100, res.Switches[0].ThriftPort)
	assert.Equal(t, 9559, res.Switches[0].GRPCPort)
	assert.Equal(t, 9101, res.Switches[1].ThriftPort)
	assert.Equal(t, 9560, res.Switches[1].GRPCPort)
}

func TestDuplicateExplicitPortRejected(t *testing.T) {
	mk := func() bag.Bag {
		b := bag.New()
		b.Set("opts", cty.ObjectVal(map[string]cty.Value{
			"grpc_port": cty.NumberIntVal(9600),
		}))
		return b
	}
	doc := testDoc(map[string]bag.Bag{"s1": mk(), "s2": mk()}, nil, nil)

	_, err := Resolve(context.Background(), doc, testRegistry(t), Env{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorContains(t, err, "9600")
}

func TestHostToHostLinkRejected(t *testing.T) {
	doc := testDoc(
		map[string]bag.Bag{"s1": bag.New()},
		[]string{"h1", "h2"},
		[]schema.RawLink{{Node1: "h1", Node2: "h2", Opts: bag.New()}},
	)

	_, err := Resolve(context.Background(), doc, testRegistry(t), Env{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorContains(t, err, "h1 <-> h2")
}

func TestUnknownLinkEndpointRejected(t *testing.T) {
	doc := testDoc(
		map[string]bag.Bag{"s1": bag.New()},
		[]string{"h1"},
		[]schema.RawLink{{Node1: "h1", Node2: "s9", Opts: bag.New()}},
	)

	_, err := Resolve(context.Background(), doc, testRegistry(t), Env{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLinkDefaultMerging(t *testing.T) {
	doc := testDoc(
		map[string]bag.Bag{"s1": bag.New(), "s2": bag.New()},
		[]string{"h1"},
		[]schema.RawLink{
			{Node1: "h1", Node2: "s1", Opts: bag.New()},
			{Node1: "s1", Node2: "s2", Opts: func() bag.Bag {
				b := bag.New()
				b.SetInt("bw", 100)
				return b
			}()},
		},
	)
	doc.Topology.Default.SetInt("bw", 10)
	doc.Topology.Default.SetString("delay", "2ms")

	res, err := Resolve(context.Background(), doc, testRegistry(t), Env{})
	require.NoError(t, err)
	require.Len(t, res.Links, 2)

	// Defaults fill unset fields.
	bw, _ := res.Links[0].Opts.Int("bw")
	assert.Equal(t, 10, bw)
	delay, _ := res.Links[0].Opts.String("delay")
	assert.Equal(t, "2ms", delay)
	weight, _ := res.Links[0].Opts.Int("weight")
	assert.Equal(t, 1, weight)

	// Explicit values are never overwritten by the default bag.
	bw, _ = res.Links[1].Opts.Int("bw")
	assert.Equal(t, 100, bw)
}

func TestSwitchOverridesAndDeepCopy(t *testing.T) {
	s1 := bag.New()
	s1.SetString("program", "other.p4")
	s1.SetBool("cpu_port", false)
	s1.SetString("cli_input", "s1-commands.txt")

	doc := testDoc(map[string]bag.Bag{"s1": s1, "s2": bag.New()}, nil, nil)

	res, err := Resolve(context.Background(), doc, testRegistry(t), Env{LogDir: "/tmp/log"})
	require.NoError(t, err)

	sw1, sw2 := res.Switches[0], res.Switches[1]
	assert.Equal(t, "other.p4", sw1.Program)
	assert.False(t, sw1.CPUPort)
	assert.Equal(t, "s1-commands.txt", sw1.CLIInput)
	assert.Equal(t, "main.p4", sw2.Program)
	assert.True(t, sw2.CPUPort)

	// Controller option bags are per switch.
	name1, _ := sw1.Controller.Options.String("sw_name")
	name2, _ := sw2.Controller.Options.String("sw_name")
	assert.Equal(t, "s1", name1)
	assert.Equal(t, "s2", name2)
	port1, _ := sw1.Controller.Options.Int("thrift_port")
	port2, _ := sw2.Controller.Options.Int("thrift_port")
	assert.NotEqual(t, port1, port2)

	// Mutating one switch's bags never leaks into the other.
	sw1.Opts.SetString("json_path", "/tmp/a.json")
	assert.False(t, sw2.Opts.Has("json_path"))
}

func TestPerSwitchComponentOverride(t *testing.T) {
	s1 := bag.New()
	s1.Set("switch_node", cty.ObjectVal(map[string]cty.Value{
		"object_name": cty.StringVal("altswitch"),
	}))
	s1.Set("controller_module", cty.ObjectVal(map[string]cty.Value{
		"object_name": cty.StringVal("altctl"),
		"options": cty.ObjectVal(map[string]cty.Value{
			"log_enabled": cty.False,
		}),
	}))
	doc := testDoc(map[string]bag.Bag{"s1": s1, "s2": bag.New()}, nil, nil)

	res, err := Resolve(context.Background(), doc, testRegistry(t), Env{LogDir: "/tmp/log"})
	require.NoError(t, err)

	sw1, sw2 := res.Switches[0], res.Switches[1]
	// A reference override without options keeps the default bag.
	assert.Equal(t, "altswitch", sw1.Node.Name)
	assert.Equal(t, "fakeswitch", sw2.Node.Name)
	assert.NotNil(t, sw1.Node.Options)

	// An explicit option bag replaces the default one.
	assert.Equal(t, "altctl", sw1.Controller.Name)
	enabled, _ := sw1.Controller.Options.Bool("log_enabled")
	assert.False(t, enabled)
	enabled, _ = sw2.Controller.Options.Bool("log_enabled")
	assert.True(t, enabled)
}

func TestResolveIsIdempotent(t *testing.T) {
	mkDoc := func() *schema.Document {
		s1 := bag.New()
		s1.Set("opts", cty.ObjectVal(map[string]cty.Value{
			"thrift_port": cty.NumberIntVal(9100),
		}))
		return testDoc(
			map[string]bag.Bag{"s1": s1, "s2": bag.New(), "s3": bag.New()},
			[]string{"h1"},
			[]schema.RawLink{{Node1: "h1", Node2: "s1", Opts: bag.New()}},
		)
	}

	reg := testRegistry(t)
	first, err := Resolve(context.Background(), mkDoc(), reg, Env{})
	require.NoError(t, err)
	second, err := Resolve(context.Background(), mkDoc(), reg, Env{})
	require.NoError(t, err)

	require.Len(t, second.Switches, len(first.Switches))
	for i := range first.Switches {
		assert.Equal(t, first.Switches[i].Name, second.Switches[i].Name)
		assert.Equal(t, first.Switches[i].ThriftPort, second.Switches[i].ThriftPort)
		assert.Equal(t, first.Switches[i].GRPCPort, second.Switches[i].GRPCPort)
		assert.True(t, first.Switches[i].Opts.Value().RawEquals(second.Switches[i].Opts.Value()))
	}
}
