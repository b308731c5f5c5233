package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/loader"
	"github.com/jbweber/vlab-avamar/internal/naming"
	"github.com/jbweber/vlab-avamar/internal/tasks"
)

const (
	serverKind = v1alpha1.KindServer
	ndmpKind   = v1alpha1.KindNDMP
)

// createFlags holds the create command's inputs.
type createFlags struct {
	file    string
	save    string
	image   string
	network string
	ip      v1alpha1.NetworkConfig
}

func newApplianceCmd(kind v1alpha1.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind.TaskSuffix(),
		Short: fmt.Sprintf("Manage %s appliances", kind.Noun()),
		Long: fmt.Sprintf(`Submit %s tasks to the worker pool.

Machines and networks are namespaced by --user (default $USER). Each
command submits one task, waits for its outcome and prints the result.
Use --wait=false to print the task handle and return immediately.`, kind.Noun()),
	}

	opts := &clientFlags{}
	opts.register(cmd, true)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: fmt.Sprintf("List your %s appliances", kind.Noun()),
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return submit(c.Context(), opts, tasks.Name(tasks.OpShow, kind), printMachines, opts.user)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "images",
		Short: fmt.Sprintf("List the available %s versions", kind.Noun()),
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return submit(c.Context(), opts, tasks.Name(tasks.OpImage, kind), printImages)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: fmt.Sprintf("Delete a %s appliance", kind.Noun()),
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return submit(c.Context(), opts, tasks.Name(tasks.OpDelete, kind), printNothing, opts.user, args[0])
		},
	})

	cmd.AddCommand(newCreateCmd(kind, opts))

	return cmd
}

func newCreateCmd(kind v1alpha1.Kind, opts *clientFlags) *cobra.Command {
	cf := &createFlags{}

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: fmt.Sprintf("Deploy a new %s appliance", kind.Noun()),
		Long: fmt.Sprintf(`Deploy a new %s from its image, wait for it to boot, apply the
network configuration and power it back on.

The request comes from flags or from a YAML file (-f). Omit --ip for DHCP.
--save writes the assembled request to a file for later use with -f.
For a static address, unset netmask, gateway, DNS and domain take the
defaults %s, %s, %v and %s.

Example:
  vlab-avamar %s create ave01 --image 19.2.0.155 --network frontend --ip 192.168.1.50`,
			kind.Noun(), v1alpha1.DefaultNetmask, v1alpha1.DefaultGateway, v1alpha1.DefaultDNS(), v1alpha1.DefaultDomain,
			kind.TaskSuffix()),
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			req, err := cf.request(kind, args)
			if err != nil {
				return err
			}
			if cf.save != "" {
				if err := loader.SaveToFile(req, cf.save); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Saved %s request for %s to %s\n", kind.Noun(), req.Name, cf.save)
				return nil
			}
			return submit(c.Context(), opts, tasks.Name(tasks.OpCreate, kind), printMachines,
				opts.user, req.Name, req.Image, naming.NetworkName(opts.user, req.Network), req.IPConfig)
		},
	}

	cmd.Flags().StringVarP(&cf.file, "file", "f", "", "YAML create request")
	cmd.Flags().StringVar(&cf.save, "save", "", "write the request to this YAML file instead of submitting it")
	cmd.Flags().StringVar(&cf.image, "image", "", "appliance version to deploy")
	cmd.Flags().StringVar(&cf.network, "network", "", "network to attach, without the user prefix")
	cmd.Flags().StringVar(&cf.ip.StaticIP, "ip", "", "static IPv4 address (omit for DHCP)")
	cmd.Flags().StringVar(&cf.ip.Netmask, "netmask", "", "netmask for the static address")
	cmd.Flags().StringVar(&cf.ip.DefaultGateway, "gateway", "", "default gateway for the static address")
	cmd.Flags().StringSliceVar(&cf.ip.DNS, "dns", nil, "DNS servers for the static address")
	cmd.Flags().StringVar(&cf.ip.Domain, "domain", "", "DNS domain for the static address")

	return cmd
}

// request builds a validated create request from -f or the flags.
func (cf *createFlags) request(kind v1alpha1.Kind, args []string) (*v1alpha1.CreateRequest, error) {
	if cf.file != "" {
		req, err := loader.LoadFromFile(cf.file)
		if err != nil {
			return nil, err
		}
		if req.Kind != string(kind) {
			return nil, fmt.Errorf("%s describes a %s, not a %s", cf.file, req.Kind, kind)
		}
		if len(args) == 1 {
			req.Name = args[0]
		}
		if err := naming.ValidateName("name", req.Name); err != nil {
			return nil, err
		}
		return req, nil
	}

	if len(args) != 1 {
		return nil, fmt.Errorf("a name is required unless -f is given")
	}

	req := &v1alpha1.CreateRequest{
		TypeMeta: v1alpha1.TypeMeta{APIVersion: v1alpha1.APIVersion(), Kind: string(kind)},
		Name:     args[0],
		Image:    cf.image,
		Network:  cf.network,
		IPConfig: cf.ip,
	}
	if req.IPConfig.Static() {
		req.IPConfig.ApplyDefaults()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := naming.ValidateName("name", req.Name); err != nil {
		return nil, err
	}
	return req, nil
}

// submit sends one task and hands its outcome to render.
func submit(ctx context.Context, opts *clientFlags, name string, render printer, args ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.user == "" {
		return fmt.Errorf("no user: set --user or $USER")
	}

	txnID := opts.txnID
	if txnID == "" {
		txnID = uuid.NewString()
	}
	req, err := tasks.NewRequest(name, txnID, args...)
	if err != nil {
		return err
	}

	client, closeFn, err := opts.connect()
	if err != nil {
		return err
	}
	defer closeFn()

	handle, err := client.Submit(ctx, req)
	if err != nil {
		return err
	}

	if !opts.wait {
		fmt.Println(handle)
		return nil
	}
	fmt.Fprintf(os.Stderr, "Submitted %s as %s, waiting...\n", name, handle)

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	rec, err := client.Wait(ctx, handle, opts.interval)
	if err != nil {
		return fmt.Errorf("failed waiting for %s: %w", handle, err)
	}
	return printResult(opts, handle, &rec, render)
}
