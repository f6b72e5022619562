package scene

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

//go:embed assets/default.yaml
var defaultDescription []byte

// Description is the YAML form of a scene. Meshes, materials and instances reference each
// other by name.
type Description struct {
	Name       string                 `yaml:"name"`
	Camera     CameraDescription      `yaml:"camera"`
	Sun        SunDescription         `yaml:"sun"`
	Materials  []MaterialDescription  `yaml:"materials"`
	Meshes     []MeshDescription      `yaml:"meshes"`
	Instances  []InstanceDescription  `yaml:"instances"`
	Skinned    []InstanceDescription  `yaml:"skinned"`
	Animations []AnimationDescription `yaml:"animations"`
}

// CameraDescription is the camera start pose.
type CameraDescription struct {
	Position mgl32.Vec3 `yaml:"position"`
	Target   mgl32.Vec3 `yaml:"target"`
}

// SunDescription configures the directional light. Zero values keep the light's defaults.
type SunDescription struct {
	Direction   mgl32.Vec3 `yaml:"direction"`
	Color       mgl32.Vec3 `yaml:"color"`
	Irradiance  float32    `yaml:"irradiance"`
	AngularSize float32    `yaml:"angular_size"`
	NoShadows   bool       `yaml:"no_shadows"`
}

// MaterialDescription describes a Material.
type MaterialDescription struct {
	Name        string     `yaml:"name"`
	BaseColor   mgl32.Vec4 `yaml:"base_color"`
	Emissive    mgl32.Vec3 `yaml:"emissive"`
	Roughness   float32    `yaml:"roughness"`
	Metalness   float32    `yaml:"metalness"`
	AlphaCutoff float32    `yaml:"alpha_cutoff"`
	AlphaTested bool       `yaml:"alpha_tested"`
	DoubleSided bool       `yaml:"double_sided"`
	Texture     string     `yaml:"texture"`
}

// MeshDescription describes a procedural mesh. Which dimensions apply depends on Primitive.
type MeshDescription struct {
	Name      string     `yaml:"name"`
	Primitive string     `yaml:"primitive"`
	Material  string     `yaml:"material"`
	Size      mgl32.Vec3 `yaml:"size"`
	Radius    float32    `yaml:"radius"`
	Height    float32    `yaml:"height"`
	Segments  int        `yaml:"segments"`
	Rings     int        `yaml:"rings"`
	Joints    int        `yaml:"joints"`
	Tiling    int        `yaml:"tiling"`
}

// InstanceDescription places a mesh. Rotation is in degrees around X, Y and Z. An empty
// Material keeps the mesh's material; a zero Scale means 1.
type InstanceDescription struct {
	Name        string     `yaml:"name"`
	Mesh        string     `yaml:"mesh"`
	Material    string     `yaml:"material"`
	Translation mgl32.Vec3 `yaml:"translation"`
	Rotation    mgl32.Vec3 `yaml:"rotation"`
	Scale       mgl32.Vec3 `yaml:"scale"`
}

// AnimationDescription describes a looping Animation.
type AnimationDescription struct {
	Name     string               `yaml:"name"`
	Duration float32              `yaml:"duration"`
	Channels []ChannelDescription `yaml:"channels"`
}

// ChannelDescription animates an instance, or a joint of a skinned instance when Joint is set.
// Rotation keys are Euler angles in degrees.
type ChannelDescription struct {
	Target      string           `yaml:"target"`
	Joint       *int             `yaml:"joint"`
	Translation []KeyDescription `yaml:"translation"`
	Rotation    []KeyDescription `yaml:"rotation"`
	Scale       []KeyDescription `yaml:"scale"`
}

// KeyDescription is one keyframe.
type KeyDescription struct {
	Time  float32    `yaml:"time"`
	Value mgl32.Vec3 `yaml:"value"`
}

// DefaultDescription returns the built-in scene.
func DefaultDescription() (*Description, error) {
	return DecodeDescription(defaultDescription)
}

// LoadDescription reads a YAML scene description from path.
//
// Parameters:
//   - path: the file to read
//
// Returns:
//   - *Description: the decoded description
//   - error: an error if the file cannot be read or decoded
func LoadDescription(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scene: read %s: %w", path, err)
	}
	d, err := DecodeDescription(data)
	if err != nil {
		return nil, fmt.Errorf("scene: %s: %w", path, err)
	}
	return d, nil
}

// DecodeDescription decodes a YAML scene description. Unknown keys are rejected.
func DecodeDescription(data []byte) (*Description, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var d Description
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode scene description: %w", err)
	}
	if len(d.Instances) == 0 && len(d.Skinned) == 0 {
		return nil, ErrEmptyScene
	}
	return &d, nil
}

// transform converts the description's placement into a Transform.
func (i InstanceDescription) transform() Transform {
	t := IdentityTransform()
	t.Translation = i.Translation
	t.Rotation = eulerDegrees(i.Rotation)
	if i.Scale != (mgl32.Vec3{}) {
		t.Scale = i.Scale
	}
	return t
}

func eulerDegrees(v mgl32.Vec3) mgl32.Quat {
	return mgl32.AnglesToQuat(mgl32.DegToRad(v[0]), mgl32.DegToRad(v[1]), mgl32.DegToRad(v[2]), mgl32.XYZ)
}
