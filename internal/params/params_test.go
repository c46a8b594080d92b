package params_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuelshammer/marimo-openscad-render/internal/params"
)

const fixture = `
/* [Dimensions] */
width = 10; // [1:100]
height = 20.5; // [1:0.5:50]

/* [Appearance] */
color_name = "red"; // ["red", "green", "blue"]
rounded = true;

cube([width, height, 5]);
`

func TestExtractParametersGroupsAndTypes(t *testing.T) {
	specs := params.ExtractParameters(fixture)
	require.Len(t, specs, 4)

	require.Equal(t, "width", specs[0].Name)
	require.Equal(t, "Dimensions", specs[0].Group)
	require.Equal(t, params.KindNumber, specs[0].Kind)
	require.NotNil(t, specs[0].Range)
	require.Equal(t, 1.0, specs[0].Range.Min)
	require.Equal(t, 100.0, specs[0].Range.Max)
	require.False(t, specs[0].Range.HasStep)

	require.Equal(t, "height", specs[1].Name)
	require.NotNil(t, specs[1].Range)
	require.True(t, specs[1].Range.HasStep)
	require.Equal(t, 0.5, specs[1].Range.Step)
	require.Equal(t, 50.0, specs[1].Range.Max)

	require.Equal(t, "color_name", specs[2].Name)
	require.Equal(t, "Appearance", specs[2].Group)
	require.Equal(t, params.KindString, specs[2].Kind)
	require.Equal(t, []string{"red", "green", "blue"}, specs[2].Options)

	require.Equal(t, "rounded", specs[3].Name)
	require.Equal(t, params.KindBool, specs[3].Kind)
}

func TestExtractParametersNoAnnotationsYieldsNilRangeAndOptions(t *testing.T) {
	specs := params.ExtractParameters("radius = 5;\n")
	require.Len(t, specs, 1)
	require.Nil(t, specs[0].Range)
	require.Nil(t, specs[0].Options)
}

func TestExtractParametersVectorDefault(t *testing.T) {
	specs := params.ExtractParameters("origin = [0, 0, 0];\n")
	require.Len(t, specs, 1)
	require.Equal(t, params.KindVector, specs[0].Kind)
}

func TestExtractParametersIgnoresNonAssignmentLines(t *testing.T) {
	specs := params.ExtractParameters("cube([1,1,1]);\ntranslate([1,0,0]) sphere(1);\n")
	require.Empty(t, specs)
}

func TestExtractParametersEmptySource(t *testing.T) {
	require.Empty(t, params.ExtractParameters(""))
}
