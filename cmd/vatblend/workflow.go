package main

import (
	"fmt"

	"github.com/airbusgeo/vatblend"
	"github.com/alessio/shellescape"
	wfv1 "github.com/argoproj/argo-workflows/v3/pkg/apis/workflow/v1alpha1"
	"github.com/google/uuid"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	k8sv1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	k8smeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/yaml"
)

var defaultImage string = "build-error-this-variable-should-have-been-set-on-build"
var dockerImage string
var shell bool
var jobid string
var workerArgs string
var parallelism int
var workerCPU, workerMemory string

func init() {
	flags := workflowCmd.Flags()
	flags.StringVar(&dockerImage, "dockerImage", defaultImage, "docker image for workers")
	flags.BoolVar(&shell, "shell", false, "output shell script instead of argo workflow")
	flags.StringVar(&jobid, "jobID", "", "(advanced) use predefined job identifier")
	flags.StringVar(&workerArgs, "workerArgs", "", "additional arguments of the worker tiled commands, e.g. \"--threads 4 --fill=false\"")
	flags.IntVar(&parallelism, "parallelism", 0, "maximum number of concurrent worker pods (0: unlimited)")
	flags.StringVar(&workerCPU, "cpu", "2", "cpu request of worker pods")
	flags.StringVar(&workerMemory, "memory", "4G", "memory request of worker pods")
	flags.Float64Var(&opacity, "opacity", 50, "opacity of the general VAT over the flat one, in percent")
	flags.BoolVar(&save8bit, "save8bit", false, "also save 8bit versions of the combined VAT")
}

func int32Ptr(val int32) *int32 {
	a := val
	return &a
}

func int64Ptr(val int64) *int64 {
	a := val
	return &a
}

func intOrStringPtr(val int) *intstr.IntOrString {
	a := intstr.FromInt(val)
	return &a
}

func resourcePtr(val string) *resource.Quantity {
	res := resource.MustParse(val)
	return &res
}

// workerCommand is the tiled invocation rendering a single tile
func workerCommand(input, out string, ext vatblend.Extent, extra []string) []string {
	command := []string{"vatblend", "tiled", input,
		"--out", out,
		"--tile=" + formatExtent(ext),
		"--workers", "1",
		"--opacity", formatFloat(opacity),
		fmt.Sprintf("--save8bit=%v", save8bit)}
	for _, v := range visualizations {
		command = append(command, "--vis", v)
	}
	for _, b := range blends {
		command = append(command, "--blend", b)
	}
	return append(command, extra...)
}

// buildWorkflow creates a workflow running every command in its own pod
func buildWorkflow(job string, commands [][]string) (*wfv1.Workflow, error) {
	requests := k8sv1.ResourceList{}
	for name, val := range map[k8sv1.ResourceName]string{k8sv1.ResourceCPU: workerCPU, k8sv1.ResourceMemory: workerMemory} {
		q, err := resource.ParseQuantity(val)
		if err != nil {
			return nil, fmt.Errorf("invalid %s request %q: %w", name, val, err)
		}
		requests[name] = q
	}
	wf := &wfv1.Workflow{
		ObjectMeta: k8smeta.ObjectMeta{
			GenerateName: "vatblend-",
			Labels: map[string]string{
				"vatblend/job": job,
			},
		},
		TypeMeta: k8smeta.TypeMeta{
			APIVersion: "argoproj.io/v1alpha1",
			Kind:       "Workflow",
		},
		Spec: wfv1.WorkflowSpec{
			TTLStrategy: &wfv1.TTLStrategy{
				SecondsAfterSuccess: int32Ptr(3600),
			},
			Entrypoint: "vatblend",
			TemplateDefaults: &wfv1.Template{
				Volumes: []k8sv1.Volume{
					{
						Name: "scratch",
						VolumeSource: k8sv1.VolumeSource{
							EmptyDir: &k8sv1.EmptyDirVolumeSource{
								SizeLimit: resourcePtr("2G"),
							},
						},
					},
				},
				Container: &k8sv1.Container{
					ImagePullPolicy: k8sv1.PullAlways,
					Resources: k8sv1.ResourceRequirements{
						Requests: requests,
					},
					WorkingDir: "/scratch",
					Env: []k8sv1.EnvVar{
						{Name: "TMPDIR", Value: "/scratch"},
					},
					VolumeMounts: []k8sv1.VolumeMount{
						{
							Name:      "scratch",
							MountPath: "/scratch",
						},
					},
				},
			},
			Templates: []wfv1.Template{
				{Name: "vatblend"},
			},
		},
	}
	if parallelism > 0 {
		wf.Spec.Parallelism = int64Ptr(int64(parallelism))
	}
	ps := wfv1.ParallelSteps{}
	for i, command := range commands {
		ps.Steps = append(ps.Steps, wfv1.WorkflowStep{
			Name: fmt.Sprintf("tile-%d", i),
			Inline: &wfv1.Template{
				RetryStrategy: &wfv1.RetryStrategy{
					Limit: intOrStringPtr(3),
				},
				Container: &k8sv1.Container{
					Name:    "worker",
					Image:   dockerImage,
					Command: command,
				},
			},
		})
	}
	if len(ps.Steps) > 0 {
		wf.Spec.Templates[0].Steps = append(wf.Spec.Templates[0].Steps, ps)
	}
	return wf, nil
}

var workflowCmd = &cobra.Command{
	Use:   "workflow mosaic.vrt",
	Short: "create an argo workflow rendering the tiles of a raster in parallel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := args[0]
		if jobid == "" {
			jobid = uuid.New().String()
		}
		extra, err := shellwords.Parse(workerArgs)
		if err != nil {
			return fmt.Errorf("invalid workerArgs: %w", err)
		}
		if len(visualizations) == 0 && len(blends) == 0 {
			return fmt.Errorf("no visualization nor blend requested")
		}
		if tileSize == 0 && pixelCount == 0 {
			pixelCount = 4096 * 4096
		}
		exts, err := tiles(cmd, input)
		if err != nil {
			return err
		}
		out := outputDir(input)
		commands := make([][]string, len(exts))
		for i, ext := range exts {
			commands[i] = workerCommand(input, out, ext, extra)
		}
		if shell {
			fmt.Println("set -e")
			for _, command := range commands {
				fmt.Println(shellescape.QuoteCommand(command))
			}
			return nil
		}
		wf, err := buildWorkflow(jobid, commands)
		if err != nil {
			return err
		}
		yb, err := yaml.Marshal(wf)
		if err != nil {
			return fmt.Errorf("marshal workflow: %w", err)
		}
		fmt.Println(string(yb))
		return nil
	},
}
