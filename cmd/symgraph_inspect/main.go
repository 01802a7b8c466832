// symgraph_inspect builds a small feed-forward network symbolically and
// reports its arguments, inferred shapes and storage requirements, as a
// quick way of exercising composition, shape inference, gradients and
// binding from the command line.
//
// Example:
//
//	symgraph_inspect -input=32,10 -hidden=16 -batchnorm -grad
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/symgraph/devices"
	"github.com/gomlx/symgraph/exec"
	"github.com/gomlx/symgraph/operators"
	"github.com/gomlx/symgraph/symbol"
	"github.com/gomlx/symgraph/types/shapes"
	"github.com/gomlx/symgraph/types/tensors"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagInput = flag.String("input", "32,10", "Shape of the input as comma-separated dimensions, "+
		"batch first. All reported shapes follow from this one by inference.")
	flagHidden    = flag.Int("hidden", 16, "Number of hidden units of the fully-connected layer.")
	flagBatchNorm = flag.Bool("batchnorm", false, "Insert a BatchNorm layer after the activation. "+
		"It adds auxiliary states (moving statistics) to the report.")
	flagGrad = flag.Bool("grad", false, "Also derive the gradient graph with respect to every "+
		"argument except the input, and report its outputs.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %v. See 'symgraph_inspect -help'.", flag.Args())
		os.Exit(1)
	}

	inputShape, err := parseShape(*flagInput)
	if err != nil {
		klog.Errorf("Invalid -input=%q: %v", *flagInput, err)
		os.Exit(1)
	}
	report(inputShape)
}

// parseShape parses comma-separated dimensions, e.g. "32,10".
func parseShape(text string) (shapes.Shape, error) {
	parts := strings.Split(text, ",")
	dimensions := make([]int, len(parts))
	for ii, part := range parts {
		dim, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return shapes.Shape{}, err
		}
		dimensions[ii] = dim
	}
	return shapes.Make(dimensions...)
}

// buildNetwork composes FullyConnected -> Activation, optionally followed by
// BatchNorm, on top of the "data" input.
func buildNetwork() *symbol.Symbol {
	data := symbol.MustVariable("data")
	fc := must.M1(symbol.Create(operators.Builtin(), operators.OpFullyConnected, "fc0",
		map[string]string{"num_hidden": strconv.Itoa(*flagHidden)}))
	net := must.M1(fc.Call("", symbol.Named(map[string]*symbol.Symbol{"data": data})))
	act := must.M1(symbol.Create(operators.Builtin(), operators.OpActivation, "act0",
		map[string]string{"act_type": "relu"}))
	net = must.M1(act.Call("", symbol.Positional(net)))
	if *flagBatchNorm {
		bn := must.M1(symbol.Create(operators.Builtin(), operators.OpBatchNorm, "bn0", nil))
		net = must.M1(bn.Call("", symbol.Named(map[string]*symbol.Symbol{"data": net})))
	}
	return net
}

func report(inputShape shapes.Shape) {
	net := buildNetwork()
	inferred := must.M1(net.InferShapes(
		symbol.NamedShapes(map[string]shapes.Shape{"data": inputShape})))
	if inferred == nil {
		klog.Errorf("Input shape %s does not determine all shapes of the network.", inputShape)
		os.Exit(1)
	}
	argNames := net.ListArguments()
	auxNames := net.ListAuxiliaryStates()

	fmt.Println(titleStyle.Render("Arguments"))
	table := newPlainTable(true)
	table.Row("Name", "Shape", "Size", "Bytes")
	var totalSize int
	var totalMemory uintptr
	for ii, name := range argNames {
		shape := inferred.Arguments[ii]
		totalSize += shape.Size()
		totalMemory += shape.Memory()
		table.Row(name, shape.String(),
			humanize.Comma(int64(shape.Size())), humanize.Bytes(uint64(shape.Memory())))
	}
	fmt.Println(table.Render())

	if len(auxNames) > 0 {
		fmt.Println(titleStyle.Render("Auxiliary States"))
		table = newPlainTable(true)
		table.Row("Name", "Shape", "Size", "Bytes")
		for ii, name := range auxNames {
			shape := inferred.AuxStates[ii]
			table.Row(name, shape.String(),
				humanize.Comma(int64(shape.Size())), humanize.Bytes(uint64(shape.Memory())))
		}
		fmt.Println(table.Render())
	}

	fmt.Println(titleStyle.Render("Outputs"))
	table = newPlainTable(true)
	table.Row("Name", "Shape")
	for ii, name := range net.ListOutputs() {
		table.Row(name, inferred.Outputs[ii].String())
	}
	fmt.Println(table.Render())

	// Bind on CPU to exercise storage allocation end to end.
	executor := must.M1(exec.SimpleBind(net, devices.CPU(0), "write",
		map[string]*tensors.Tensor{"data": tensors.Zeros(inputShape)}))
	fmt.Println(titleStyle.Render("Binding"))
	table = newPlainTable(false)
	table.Row("device", executor.Context().String())
	table.Row("# arguments", humanize.Comma(int64(len(argNames))))
	table.Row("# parameters", humanize.Comma(int64(totalSize)))
	table.Row("# bytes", humanize.Bytes(uint64(totalMemory)))
	fmt.Println(table.Render())

	if *flagGrad {
		reportGrad(net, inputShape)
	}
}

// reportGrad derives the gradient graph with respect to every argument
// except the input and reports the shapes of its outputs.
func reportGrad(net *symbol.Symbol, inputShape shapes.Shape) {
	var wrt []string
	for _, name := range net.ListArguments() {
		if name != "data" {
			wrt = append(wrt, name)
		}
	}
	gradGraph := must.M1(net.Grad(wrt))
	inferred := must.M1(gradGraph.InferShapes(
		symbol.NamedShapes(map[string]shapes.Shape{"data": inputShape})))

	fmt.Println(titleStyle.Render("Gradients"))
	table := newPlainTable(true)
	table.Row("Argument", "Gradient Output", "Shape")
	for ii, name := range gradGraph.ListOutputs() {
		shape := "(?)"
		if inferred != nil {
			shape = inferred.Outputs[ii].String()
		}
		table.Row(wrt[ii], name, shape)
	}
	fmt.Println(table.Render())
}
