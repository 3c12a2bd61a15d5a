package pods

// PodSpec is the body of a create-pod request.
type PodSpec struct {
	Name                    string            `json:"name"`
	ImageName               string            `json:"imageName"`
	CloudType               string            `json:"cloudType,omitempty"`
	ComputeType             string            `json:"computeType,omitempty"`
	AllowedCudaVersions     []string          `json:"allowedCudaVersions,omitempty"`
	ContainerDiskInGb       int               `json:"containerDiskInGb,omitempty"`
	ContainerRegistryAuthID string            `json:"containerRegistryAuthId,omitempty"`
	CPUFlavorIDs            []string          `json:"cpuFlavorIds,omitempty"`
	CPUFlavorPriority       string            `json:"cpuFlavorPriority,omitempty"`
	DataCenterIDs           []string          `json:"dataCenterIds,omitempty"`
	DataCenterPriority      string            `json:"dataCenterPriority,omitempty"`
	DockerEntrypoint        []string          `json:"dockerEntrypoint"`
	DockerStartCmd          []string          `json:"dockerStartCmd"`
	Env                     map[string]string `json:"env,omitempty"`
	GPUCount                int               `json:"gpuCount,omitempty"`
	GPUTypeIDs              []string          `json:"gpuTypeIds,omitempty"`
	GPUTypePriority         string            `json:"gpuTypePriority,omitempty"`
	Interruptible           bool              `json:"interruptible"`
	Locked                  bool              `json:"locked"`
	MinRAMPerGPU            int               `json:"minRAMPerGPU,omitempty"`
	MinVCPUPerGPU           int               `json:"minVCPUPerGPU,omitempty"`
	Ports                   []string          `json:"ports,omitempty"`
	SupportPublicIP         bool              `json:"supportPublicIp"`
	VCPUCount               int               `json:"vcpuCount,omitempty"`
	VolumeInGb              int               `json:"volumeInGb,omitempty"`
	VolumeMountPath         string            `json:"volumeMountPath,omitempty"`
}

// DefaultCPUPodSpec returns the CPU pod profile: a cpu3c flavor with two
// vCPUs, a 10GB container disk and a 20GB volume at /workspace, placed in
// EU-RO-1 or CA-MTL-1.
func DefaultCPUPodSpec() PodSpec {
	return PodSpec{
		Name:                "my pod",
		ImageName:           "runpod/pytorch:2.1.0-py3.10-cuda11.8.0-devel-ubuntu22.04",
		CloudType:           "SECURE",
		ComputeType:         "CPU",
		AllowedCudaVersions: []string{"12.7"},
		ContainerDiskInGb:   10,
		CPUFlavorIDs:        []string{"cpu3c"},
		CPUFlavorPriority:   "availability",
		DataCenterIDs:       []string{"EU-RO-1", "CA-MTL-1"},
		DataCenterPriority:  "availability",
		DockerEntrypoint:    []string{},
		DockerStartCmd:      []string{},
		Env:                 map[string]string{"ENV_VAR": "value"},
		GPUCount:            1,
		GPUTypeIDs:          []string{"NVIDIA GeForce RTX 4090"},
		GPUTypePriority:     "availability",
		MinRAMPerGPU:        8,
		MinVCPUPerGPU:       2,
		Ports:               []string{"8888/http", "22/tcp"},
		VCPUCount:           2,
		VolumeInGb:          20,
		VolumeMountPath:     "/workspace",
	}
}

// WithEntrypoint returns a copy of s whose container runs entrypoint.
func (s PodSpec) WithEntrypoint(entrypoint ...string) PodSpec {
	s.DockerEntrypoint = append([]string{}, entrypoint...)
	return s
}

// Pod is a pod as reported by the management API. Only commonly used
// fields are decoded.
type Pod struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	DesiredStatus string            `json:"desiredStatus"`
	ImageName     string            `json:"imageName"`
	MachineID     string            `json:"machineId,omitempty"`
	PublicIP      string            `json:"publicIp,omitempty"`
	Ports         []string          `json:"ports,omitempty"`
	PortMappings  map[string]int    `json:"portMappings,omitempty"`
	CostPerHr     float64           `json:"costPerHr,omitempty"`
	VCPUCount     int               `json:"vcpuCount,omitempty"`
	MemoryInGb    float64           `json:"memoryInGb,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	LastStartedAt string            `json:"lastStartedAt,omitempty"`
}

// Endpoint is a serverless endpoint.
type Endpoint struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	TemplateID  string   `json:"templateId,omitempty"`
	ComputeType string   `json:"computeType,omitempty"`
	GPUTypeIDs  []string `json:"gpuTypeIds,omitempty"`
	WorkersMin  int      `json:"workersMin"`
	WorkersMax  int      `json:"workersMax"`
	IdleTimeout int      `json:"idleTimeout,omitempty"`
}
