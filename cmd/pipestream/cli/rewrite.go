package cli

import (
	"fmt"

	"pipestream/internal/xmlns"

	"github.com/spf13/cobra"
)

func newRewriteCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite [file]",
		Short: "Translate XML namespaces",
		Long: "Rewrites the namespaces of an XML document with match=replace rules. Rules are regular expressions; " +
			"the replacement may use $1 or ${name}. Configured rules take precedence over --rule flags.",
		Example: `  pipestream rewrite --rule '^urn:orders:v1$=urn:orders:v2' order.xml
  pipestream rewrite --rule 'http://old/(\w+)=>urn:new:$1' --absorb < in.xml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rc := cfg.Rewrite
			if ignore, _ := cmd.Flags().GetBool("ignore-config"); ignore {
				rc.Rules = nil
				rc.Override = false
			}
			configured, err := rc.TranslationSet()
			if err != nil {
				return err
			}

			ruleFlags, _ := cmd.Flags().GetStringArray("rule")
			rules := make([]xmlns.Rule, 0, len(ruleFlags))
			for _, s := range ruleFlags {
				r, err := xmlns.ParseRule(s)
				if err != nil {
					return err
				}
				rules = append(rules, r)
			}
			flagSet, err := xmlns.NewTranslationSet(false, rules...)
			if err != nil {
				return err
			}
			set := xmlns.Merge(configured, flagSet)

			if v, _ := cmd.Flags().GetBool("attributes"); v {
				rc.Attributes = true
			}
			if v, _ := cmd.Flags().GetBool("absorb"); v {
				rc.AbsorbDeclaration = true
			}
			if v, _ := cmd.Flags().GetBool("force-decl"); v {
				rc.ForceDeclaration = true
			}
			if v, _ := cmd.Flags().GetString("encoding"); v != "" {
				rc.Encoding = v
			}

			src, _, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			opts := append(rc.Options(), xmlns.WithLogger(env.Logger()))
			rw, err := xmlns.NewRewriter(src, set, opts...)
			if err != nil {
				_ = src.Close()
				return err
			}
			defer func() { _ = rw.Close() }()

			if _, err := copyOut(cmd, rw); err != nil {
				return fmt.Errorf("rewrite: %w", err)
			}
			return nil
		},
	}
	addOutputFlag(cmd)
	cmd.Flags().StringArrayP("rule", "r", nil, "namespace translation match=replace (or match=>replace); repeatable")
	cmd.Flags().Bool("ignore-config", false, "ignore rules from the config file")
	cmd.Flags().Bool("attributes", false, "translate attribute namespaces too")
	cmd.Flags().Bool("absorb", false, "drop the input XML declaration")
	cmd.Flags().Bool("force-decl", false, "always emit an XML declaration")
	cmd.Flags().String("encoding", "", "output charset, an IANA name or alias (default UTF-8)")
	return cmd
}
